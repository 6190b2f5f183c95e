package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kursadbilgin/lesson-engine/internal/domain"
	"github.com/kursadbilgin/lesson-engine/internal/provider"
	"github.com/kursadbilgin/lesson-engine/internal/ratelimit"
	"github.com/kursadbilgin/lesson-engine/internal/render"
	"github.com/kursadbilgin/lesson-engine/internal/repository"
)

var (
	_ repository.SessionRepository      = (*memorySessionRepo)(nil)
	_ repository.UserRepository         = (*fakeUserRepo)(nil)
	_ repository.PreferenceRepository   = (*fakePreferenceRepo)(nil)
	_ repository.NotificationRepository = (*fakeNotificationRepo)(nil)
	_ repository.DeliveryRepository     = (*fakeDeliveryRepo)(nil)
	_ repository.MarkerRepository       = (*memoryMarkerRepo)(nil)
	_ repository.StudentRepository      = (*fakeStudentRepo)(nil)
	_ provider.Provider                 = (*fakeProvider)(nil)
	_ ratelimit.Throttle                = (*fakeThrottle)(nil)
	_ IntentDispatcher                  = (*fakeDispatcher)(nil)
	_ TrialConverter                    = (*fakeConverter)(nil)
	_ Renderer                          = (*fakeRenderer)(nil)
)

// memorySessionRepo keeps sessions in memory and applies the same
// conditional update rule as the gorm repository.
type memorySessionRepo struct {
	mu         sync.Mutex
	sessions   map[string]domain.ClassSession
	listErr    error
	transition func(ctx context.Context, id string, from, to domain.SessionStatus) (bool, error)
}

func newMemorySessionRepo(sessions ...domain.ClassSession) *memorySessionRepo {
	repo := &memorySessionRepo{sessions: make(map[string]domain.ClassSession)}
	for _, s := range sessions {
		repo.sessions[s.ID] = s
	}
	return repo
}

func (r *memorySessionRepo) ListActiveOnOrBefore(ctx context.Context, date string) ([]domain.ClassSession, error) {
	return r.list(func(s domain.ClassSession) bool {
		return (s.Status == domain.SessionScheduled || s.Status == domain.SessionInProgress) && s.Date <= date
	})
}

func (r *memorySessionRepo) ListScheduledBetween(ctx context.Context, fromDate, toDate string) ([]domain.ClassSession, error) {
	return r.list(func(s domain.ClassSession) bool {
		return s.Status == domain.SessionScheduled && s.Date >= fromDate && s.Date <= toDate
	})
}

func (r *memorySessionRepo) list(match func(domain.ClassSession) bool) ([]domain.ClassSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}

	var out []domain.ClassSession
	for _, s := range r.sessions {
		if match(s) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memorySessionRepo) TransitionStatus(ctx context.Context, id string, from, to domain.SessionStatus) (bool, error) {
	if r.transition != nil {
		return r.transition(ctx, id, from, to)
	}
	return r.applyTransition(id, from, to), nil
}

func (r *memorySessionRepo) applyTransition(id string, from, to domain.SessionStatus) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok || s.Status != from {
		return false
	}
	s.Status = to
	r.sessions[id] = s
	return true
}

func (r *memorySessionRepo) status(id string) domain.SessionStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[id].Status
}

type fakeUserRepo struct {
	getByIDFn func(ctx context.Context, id string) (*domain.User, error)
}

func (f *fakeUserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	if f.getByIDFn != nil {
		return f.getByIDFn(ctx, id)
	}
	return &domain.User{
		ID:       id,
		FullName: "User " + id,
		Email:    id + "@example.com",
		Phone:    "+20100" + id,
	}, nil
}

type fakePreferenceRepo struct {
	getByUserIDFn func(ctx context.Context, userID string) (*domain.NotificationPreferences, error)
}

func (f *fakePreferenceRepo) GetByUserID(ctx context.Context, userID string) (*domain.NotificationPreferences, error) {
	if f.getByUserIDFn != nil {
		return f.getByUserIDFn(ctx, userID)
	}
	return nil, domain.ErrNotFound
}

func (f *fakePreferenceRepo) Save(ctx context.Context, p *domain.NotificationPreferences) error {
	return nil
}

type fakeNotificationRepo struct {
	mu               sync.Mutex
	created          []domain.Notification
	createIfAbsentFn func(ctx context.Context, n *domain.Notification) (bool, error)
}

func (f *fakeNotificationRepo) CreateIfAbsent(ctx context.Context, n *domain.Notification) (bool, error) {
	if f.createIfAbsentFn != nil {
		return f.createIfAbsentFn(ctx, n)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if n.DedupeKey != nil {
		for _, existing := range f.created {
			if existing.DedupeKey != nil && *existing.DedupeKey == *n.DedupeKey {
				*n = existing
				return false, nil
			}
		}
	}
	f.created = append(f.created, *n)
	return true, nil
}

func (f *fakeNotificationRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

type fakeDeliveryRepo struct {
	mu                sync.Mutex
	records           map[string]*domain.DeliveryRecord
	order             []string
	createFn          func(ctx context.Context, d *domain.DeliveryRecord) error
	completeAttemptFn func(ctx context.Context, id string, status domain.DeliveryStatus, sentAt *time.Time, errMsg *string) error
}

func (f *fakeDeliveryRepo) Create(ctx context.Context, d *domain.DeliveryRecord) error {
	if f.createFn != nil {
		if err := f.createFn(ctx, d); err != nil {
			return err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.records == nil {
		f.records = make(map[string]*domain.DeliveryRecord)
	}
	record := *d
	f.records[d.ID] = &record
	f.order = append(f.order, d.ID)
	return nil
}

func (f *fakeDeliveryRepo) CompleteAttempt(ctx context.Context, id string, status domain.DeliveryStatus, sentAt *time.Time, errMsg *string) error {
	if f.completeAttemptFn != nil {
		return f.completeAttemptFn(ctx, id, status, sentAt, errMsg)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.records[id]
	if !ok {
		return domain.ErrNotFound
	}
	record.Status = status
	record.SentAt = sentAt
	record.ErrorMessage = errMsg
	return nil
}

func (f *fakeDeliveryRepo) byChannel(channel domain.Channel) []domain.DeliveryRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.DeliveryRecord
	for _, id := range f.order {
		if record := f.records[id]; record.Channel == channel {
			out = append(out, *record)
		}
	}
	return out
}

type memoryMarkerRepo struct {
	mu       sync.Mutex
	markers  map[string]bool
	existsFn func(ctx context.Context, m domain.DispatchMarker) (bool, error)
	recordFn func(ctx context.Context, m domain.DispatchMarker) error
}

func newMemoryMarkerRepo() *memoryMarkerRepo {
	return &memoryMarkerRepo{markers: make(map[string]bool)}
}

func (r *memoryMarkerRepo) Exists(ctx context.Context, m domain.DispatchMarker) (bool, error) {
	if r.existsFn != nil {
		return r.existsFn(ctx, m)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.markers[m.DedupeKey()], nil
}

func (r *memoryMarkerRepo) Record(ctx context.Context, m domain.DispatchMarker) error {
	if r.recordFn != nil {
		if err := r.recordFn(ctx, m); err != nil {
			return err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.markers[m.DedupeKey()] = true
	return nil
}

func (r *memoryMarkerRepo) has(m domain.DispatchMarker) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.markers[m.DedupeKey()]
}

type fakeStudentRepo struct {
	listLowBalanceFn func(ctx context.Context, threshold int) ([]domain.StudentProfile, error)
	listTrialsFn     func(ctx context.Context, from, to time.Time) ([]domain.StudentProfile, error)
}

func (f *fakeStudentRepo) ListLowBalance(ctx context.Context, threshold int) ([]domain.StudentProfile, error) {
	if f.listLowBalanceFn != nil {
		return f.listLowBalanceFn(ctx, threshold)
	}
	return nil, nil
}

func (f *fakeStudentRepo) ListTrialsEndingBetween(ctx context.Context, from, to time.Time) ([]domain.StudentProfile, error) {
	if f.listTrialsFn != nil {
		return f.listTrialsFn(ctx, from, to)
	}
	return nil, nil
}

type fakeRenderer struct {
	renderFn func(kind domain.Kind, language string, params map[string]string) (render.Rendered, error)
}

func (f *fakeRenderer) Render(kind domain.Kind, language string, params map[string]string) (render.Rendered, error) {
	if f.renderFn != nil {
		return f.renderFn(kind, language, params)
	}
	return render.Rendered{
		Subject: fmt.Sprintf("%s subject", kind),
		HTML:    fmt.Sprintf("<p>%s body</p>", kind),
		Text:    fmt.Sprintf("%s body", kind),
	}, nil
}

type fakeProvider struct {
	mu           sync.Mutex
	sent         []provider.Message
	unconfigured bool
	sendFn       func(ctx context.Context, msg provider.Message) (*provider.ProviderResponse, error)
}

func (f *fakeProvider) Send(ctx context.Context, msg provider.Message) (*provider.ProviderResponse, error) {
	if f.unconfigured {
		return nil, provider.ErrNotConfigured
	}
	f.mu.Lock()
	f.sent = append(f.sent, msg)
	f.mu.Unlock()
	if f.sendFn != nil {
		return f.sendFn(ctx, msg)
	}
	return &provider.ProviderResponse{StatusCode: 202}, nil
}

func (f *fakeProvider) Verify(ctx context.Context) error {
	if f.unconfigured {
		return provider.ErrNotConfigured
	}
	return nil
}

func (f *fakeProvider) Configured() bool { return !f.unconfigured }

func (f *fakeProvider) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakeThrottle struct {
	waitFn func(ctx context.Context, channel domain.Channel) error
}

func (f *fakeThrottle) Allow(ctx context.Context, channel domain.Channel) (bool, error) {
	return true, nil
}

func (f *fakeThrottle) Wait(ctx context.Context, channel domain.Channel) error {
	if f.waitFn != nil {
		return f.waitFn(ctx, channel)
	}
	return nil
}

type fakeDispatcher struct {
	mu         sync.Mutex
	intents    []domain.NotificationIntent
	dispatchFn func(ctx context.Context, intent domain.NotificationIntent) (DispatchResult, error)
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, intent domain.NotificationIntent) (DispatchResult, error) {
	f.mu.Lock()
	f.intents = append(f.intents, intent)
	f.mu.Unlock()
	if f.dispatchFn != nil {
		return f.dispatchFn(ctx, intent)
	}
	return DispatchResult{NotificationID: "n-" + intent.UserID, Delivered: true}, nil
}

func (f *fakeDispatcher) calls() []domain.NotificationIntent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.NotificationIntent(nil), f.intents...)
}

type fakeConverter struct {
	mu        sync.Mutex
	converted []string
	convertFn func(ctx context.Context, sessionID string) error
}

func (f *fakeConverter) ConvertTrialIfEligible(ctx context.Context, sessionID string) error {
	f.mu.Lock()
	f.converted = append(f.converted, sessionID)
	f.mu.Unlock()
	if f.convertFn != nil {
		return f.convertFn(ctx, sessionID)
	}
	return nil
}

func (f *fakeConverter) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.converted...)
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

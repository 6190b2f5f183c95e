package domain

import (
	"errors"
	"strings"
	"testing"
)

func TestParseChannelFromString(t *testing.T) {
	t.Parallel()

	got, err := ParseChannelFromString(" email ")
	if err != nil {
		t.Fatalf("ParseChannelFromString() unexpected error = %v", err)
	}
	if got != ChannelEmail {
		t.Fatalf("ParseChannelFromString() = %s, want %s", got, ChannelEmail)
	}

	_, err = ParseChannelFromString("fax")
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("ParseChannelFromString() error = %v, want ErrValidation", err)
	}
}

func TestKindCategory(t *testing.T) {
	t.Parallel()

	tests := []struct {
		kind Kind
		want Category
	}{
		{kind: KindClassReminder, want: CategoryClassReminders},
		{kind: KindLowBalance, want: CategorySystemUpdates},
		{kind: KindTrialExpiring, want: CategorySystemUpdates},
		{kind: Kind("something_new"), want: CategorySystemUpdates},
	}

	for _, tt := range tests {
		if got := tt.kind.Category(); got != tt.want {
			t.Fatalf("%s.Category() = %s, want %s", tt.kind, got, tt.want)
		}
	}
}

func TestNotificationValidate(t *testing.T) {
	t.Parallel()

	n := Notification{UserID: "u1", Title: "Reminder", Message: "Your class starts soon"}
	if err := n.Validate(); err != nil {
		t.Fatalf("Validate() unexpected error = %v", err)
	}

	n.Title = " "
	if err := n.Validate(); !errors.Is(err, ErrValidation) {
		t.Fatalf("Validate() error = %v, want ErrValidation", err)
	}
}

func TestDeliveryRecordValidate(t *testing.T) {
	t.Parallel()

	base := DeliveryRecord{
		Channel:          ChannelSMS,
		RecipientAddress: "+201001234567",
		RenderedBody:     "hello",
	}

	tests := []struct {
		name    string
		mutate  func(*DeliveryRecord)
		wantErr bool
	}{
		{
			name:   "valid record",
			mutate: func(d *DeliveryRecord) {},
		},
		{
			name: "missing recipient",
			mutate: func(d *DeliveryRecord) {
				d.RecipientAddress = ""
			},
			wantErr: true,
		},
		{
			name: "in-app is not a delivery channel",
			mutate: func(d *DeliveryRecord) {
				d.Channel = ChannelInApp
			},
			wantErr: true,
		},
		{
			name: "sms content over limit",
			mutate: func(d *DeliveryRecord) {
				d.RenderedBody = strings.Repeat("a", MaxSMSContent+1)
			},
			wantErr: true,
		},
		{
			name: "rune-aware sms length accepted",
			mutate: func(d *DeliveryRecord) {
				d.RenderedBody = strings.Repeat("ğ", MaxSMSContent)
			},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			current := base
			tt.mutate(&current)

			err := current.Validate()
			if tt.wantErr {
				if !errors.Is(err, ErrValidation) {
					t.Fatalf("Validate() error = %v, want ErrValidation", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate() unexpected error = %v", err)
			}
		})
	}
}

func TestDefaultPreferences(t *testing.T) {
	t.Parallel()

	prefs := DefaultPreferences("u1")
	if !prefs.ChannelEnabled(ChannelInApp) || !prefs.ChannelEnabled(ChannelEmail) {
		t.Fatal("in-app and email should be enabled by default")
	}
	if prefs.ChannelEnabled(ChannelSMS) {
		t.Fatal("sms should be disabled by default")
	}
	for _, lead := range ReminderLeadTimes {
		if !prefs.LeadTimeSelected(lead.Key) {
			t.Fatalf("lead %s should be selected by default", lead.Key)
		}
	}
}

func TestPreferencesUnsetValues(t *testing.T) {
	t.Parallel()

	prefs := NotificationPreferences{UserID: "u1"}
	if !prefs.ChannelEnabled(ChannelInApp) {
		t.Fatal("unset in-app should default to enabled")
	}
	if prefs.ChannelEnabled(ChannelEmail) {
		t.Fatal("unset email should default to disabled")
	}
	if !prefs.CategoryEnabled(CategoryClassReminders) {
		t.Fatal("unset category should default to enabled")
	}
	if !prefs.LeadTimeSelected("15m") {
		t.Fatal("empty lead time selection should select everything")
	}

	prefs.LeadTimes = []string{"24h"}
	if prefs.LeadTimeSelected("1h") {
		t.Fatal("1h should not be selected")
	}
}

func TestParseLeadTime(t *testing.T) {
	t.Parallel()

	lead, err := ParseLeadTime(" 1H ")
	if err != nil {
		t.Fatalf("ParseLeadTime() error = %v", err)
	}
	if lead != Lead1Hour {
		t.Fatalf("ParseLeadTime() = %+v, want %+v", lead, Lead1Hour)
	}
	if lead.MarkerKey() != "reminder:1h" {
		t.Fatalf("MarkerKey() = %s, want reminder:1h", lead.MarkerKey())
	}

	if _, err := ParseLeadTime("2d"); !errors.Is(err, ErrValidation) {
		t.Fatalf("ParseLeadTime() error = %v, want ErrValidation", err)
	}
}

func TestReminderMarkerDedupeKey(t *testing.T) {
	t.Parallel()

	marker := ReminderMarker("s1", "u1", Lead15Minutes)
	if got := marker.DedupeKey(); got != "reminder:15m:s1:u1" {
		t.Fatalf("DedupeKey() = %s, want reminder:15m:s1:u1", got)
	}
}

package otp

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/petlink-az/auth-service/internal/apperr"
	"github.com/petlink-az/auth-service/internal/model"
	"github.com/petlink-az/auth-service/internal/repository"
)

// fakeStore keeps codes in memory with the same ordering semantics as the
// SQL repository (newest row first).
type fakeStore struct {
	nextID uint64
	rows   map[uint64]model.OtpCode
}

func newFakeStore() *fakeStore { return &fakeStore{rows: map[uint64]model.OtpCode{}} }

func (s *fakeStore) Create(_ context.Context, c model.OtpCode) (uint64, error) {
	s.nextID++
	c.ID = s.nextID
	s.rows[c.ID] = c
	return c.ID, nil
}

func (s *fakeStore) Delete(_ context.Context, id uint64) error {
	delete(s.rows, id)
	return nil
}

func (s *fakeStore) newestMatching(match func(model.OtpCode) bool) (model.OtpCode, error) {
	var ids []uint64
	for id := range s.rows {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })
	for _, id := range ids {
		if c := s.rows[id]; match(c) {
			return c, nil
		}
	}
	return model.OtpCode{}, repository.ErrNotFound
}

func (s *fakeStore) LatestUnverified(_ context.Context, phone string, purpose model.OtpPurpose) (model.OtpCode, error) {
	return s.newestMatching(func(c model.OtpCode) bool {
		return c.Phone == phone && c.Purpose == purpose && !c.Verified
	})
}

func (s *fakeStore) LatestByCode(_ context.Context, phone string, purpose model.OtpPurpose, code string) (model.OtpCode, error) {
	return s.newestMatching(func(c model.OtpCode) bool {
		return c.Phone == phone && c.Purpose == purpose && c.Code == code
	})
}

func (s *fakeStore) MarkVerified(_ context.Context, id uint64, at time.Time) error {
	c, ok := s.rows[id]
	if !ok || c.Verified {
		return repository.ErrNotFound
	}
	c.Verified = true
	c.VerifiedAt = &at
	s.rows[id] = c
	return nil
}

func (s *fakeStore) Cleanup(context.Context, string, uint64, time.Duration) error { return nil }

// fakeSender records dispatches and can be told to fail.
type fakeSender struct {
	sent []string
	fail bool
}

func (f *fakeSender) Send(_ context.Context, _, message string) error {
	if f.fail {
		return errors.New("provider down")
	}
	f.sent = append(f.sent, message)
	return nil
}

func newTestService(store *fakeStore, sender *fakeSender) *Service {
	return NewService(store, sender, FixedCode("123456"), Config{
		TTL:       10 * time.Minute,
		Cooldown:  time.Minute,
		Retention: 24 * time.Hour,
	}, zerolog.Nop())
}

const phone = "+994501234567"

func TestSendAndVerify(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	sender := &fakeSender{}
	svc := newTestService(store, sender)

	if err := svc.Send(ctx, phone, model.OtpPurposeRegistration); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("dispatched %d messages, want 1", len(sender.sent))
	}

	// Non-consuming verification is repeatable.
	for i := 0; i < 2; i++ {
		if err := svc.Verify(ctx, phone, "123456", model.OtpPurposeRegistration, false); err != nil {
			t.Fatalf("non-consuming Verify #%d: %v", i+1, err)
		}
	}

	// Consuming verification succeeds once, then the code is used up.
	if err := svc.Verify(ctx, phone, "123456", model.OtpPurposeRegistration, true); err != nil {
		t.Fatalf("consuming Verify: %v", err)
	}
	err := svc.Verify(ctx, phone, "123456", model.OtpPurposeRegistration, true)
	if apperr.CodeOf(err) != apperr.CodeOtpAlreadyUsed {
		t.Errorf("repeat Verify = %v, want OtpAlreadyUsed", err)
	}
}

func TestSendCooldown(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc := newTestService(store, &fakeSender{})

	if err := svc.Send(ctx, phone, model.OtpPurposeRegistration); err != nil {
		t.Fatalf("first Send: %v", err)
	}
	err := svc.Send(ctx, phone, model.OtpPurposeRegistration)
	if apperr.CodeOf(err) != apperr.CodeRateLimited {
		t.Fatalf("second Send = %v, want RateLimited", err)
	}

	// A different purpose has its own cool-down window.
	if err := svc.Send(ctx, phone, model.OtpPurposeLogin); err != nil {
		t.Errorf("Send for other purpose = %v, want nil", err)
	}

	// Once the window passes, sending works again and supersedes the old code.
	svc.now = func() time.Time { return time.Now().UTC().Add(2 * time.Minute) }
	if err := svc.Send(ctx, phone, model.OtpPurposeRegistration); err != nil {
		t.Errorf("Send after cooldown = %v, want nil", err)
	}
}

func TestDispatchFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc := newTestService(store, &fakeSender{fail: true})

	err := svc.Send(ctx, phone, model.OtpPurposeRegistration)
	if apperr.CodeOf(err) != apperr.CodeDispatchFailure {
		t.Fatalf("Send = %v, want DispatchFailure", err)
	}
	if len(store.rows) != 0 {
		t.Errorf("undispatched code left in store: %v", store.rows)
	}
	// Rollback means no cool-down applies; a retry may go straight out.
	svc.sender = &fakeSender{}
	if err := svc.Send(ctx, phone, model.OtpPurposeRegistration); err != nil {
		t.Errorf("retry after rollback = %v, want nil", err)
	}
}

func TestVerifyExpired(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc := newTestService(store, &fakeSender{})

	if err := svc.Send(ctx, phone, model.OtpPurposeLogin); err != nil {
		t.Fatalf("Send: %v", err)
	}
	svc.now = func() time.Time { return time.Now().UTC().Add(11 * time.Minute) }
	err := svc.Verify(ctx, phone, "123456", model.OtpPurposeLogin, true)
	if apperr.CodeOf(err) != apperr.CodeOtpExpired {
		t.Errorf("Verify after TTL = %v, want OtpExpired", err)
	}
}

func TestVerifyMismatch(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc := newTestService(store, &fakeSender{})

	if err := svc.Send(ctx, phone, model.OtpPurposeRegistration); err != nil {
		t.Fatalf("Send: %v", err)
	}

	tests := []struct {
		name    string
		phone   string
		code    string
		purpose model.OtpPurpose
	}{
		{"wrong code", phone, "654321", model.OtpPurposeRegistration},
		{"wrong phone", "+994559999999", "123456", model.OtpPurposeRegistration},
		{"wrong purpose", phone, "123456", model.OtpPurposeLogin},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := svc.Verify(ctx, tc.phone, tc.code, tc.purpose, true)
			if apperr.CodeOf(err) != apperr.CodeOtpNotFound {
				t.Errorf("Verify = %v, want OtpNotFound", err)
			}
		})
	}
}

func TestSupersededCodeRejected(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	sender := &fakeSender{}
	svc := NewService(store, sender, RandomCode, Config{
		TTL:       10 * time.Minute,
		Cooldown:  time.Minute,
		Retention: 24 * time.Hour,
	}, zerolog.Nop())

	if err := svc.Send(ctx, phone, model.OtpPurposeRegistration); err != nil {
		t.Fatalf("first Send: %v", err)
	}
	oldCode := store.rows[1].Code

	svc.now = func() time.Time { return time.Now().UTC().Add(2 * time.Minute) }
	if err := svc.Send(ctx, phone, model.OtpPurposeRegistration); err != nil {
		t.Fatalf("second Send: %v", err)
	}
	newCode := store.rows[2].Code

	if oldCode != newCode {
		// The first code is superseded and must no longer verify.
		err := svc.Verify(ctx, phone, oldCode, model.OtpPurposeRegistration, true)
		if apperr.CodeOf(err) != apperr.CodeOtpNotFound {
			t.Errorf("superseded Verify = %v, want OtpNotFound", err)
		}
	}
	if err := svc.Verify(ctx, phone, newCode, model.OtpPurposeRegistration, true); err != nil {
		t.Errorf("newest Verify = %v, want nil", err)
	}
}

func TestRandomCodeShape(t *testing.T) {
	for i := 0; i < 20; i++ {
		code, err := RandomCode()
		if err != nil {
			t.Fatalf("RandomCode: %v", err)
		}
		if len(code) != 6 {
			t.Fatalf("code %q is not 6 digits", code)
		}
		for _, r := range code {
			if r < '0' || r > '9' {
				t.Fatalf("code %q contains non-digit", code)
			}
		}
	}
}

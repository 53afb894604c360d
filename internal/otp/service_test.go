package otp

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/agaseke/agaseke-backend/internal/delivery"
	"github.com/agaseke/agaseke-backend/pkg/config"
	"github.com/agaseke/agaseke-backend/pkg/db"
	"github.com/agaseke/agaseke-backend/pkg/db/dbtest"
	"github.com/agaseke/agaseke-backend/pkg/db/models"
	"github.com/agaseke/agaseke-backend/pkg/enums"
	pkgerrors "github.com/agaseke/agaseke-backend/pkg/errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var testPolicy = config.OTPConfig{
	TTL:         5 * time.Minute,
	CodeLength:  6,
	MaxAttempts: 5,
	GraceWindow: 10 * time.Minute,
	CASRetries:  3,
}

type captureChannel struct {
	mu   sync.Mutex
	msgs []delivery.Message
	err  error
}

func (c *captureChannel) Deliver(_ context.Context, msg delivery.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.msgs = append(c.msgs, msg)
	return nil
}

func (c *captureChannel) last(t *testing.T) delivery.Message {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	require.NotEmpty(t, c.msgs, "no code delivered")
	return c.msgs[len(c.msgs)-1]
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	svc     *service
	client  *db.Client
	channel *captureChannel
	clock   *fakeClock
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	client := dbtest.Open(t)
	channel := &captureChannel{}
	svc, err := NewService(ServiceParams{
		Repo:            NewRepository(client.DB()),
		DB:              client,
		Channel:         channel,
		Config:          testPolicy,
		DeliveryTimeout: time.Second,
	})
	require.NoError(t, err)

	clock := &fakeClock{now: time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)}
	impl := svc.(*service)
	impl.now = clock.Now
	return &harness{svc: impl, client: client, channel: channel, clock: clock}
}

func recipient() Recipient {
	return Recipient{UserID: uuid.New(), Address: "buyer@example.com"}
}

func requireCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	require.Error(t, err)
	require.Truef(t, pkgerrors.IsCode(err, code), "expected %s, got %v", code, err)
}

func TestCreateDeliversCodeAndHidesIt(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	r := recipient()
	session, err := h.svc.Create(ctx, r, enums.OTPPurposeLogin)
	require.NoError(t, err)

	msg := h.channel.last(t)
	assert.Len(t, msg.Code, 6)
	assert.Equal(t, session.SessionID, msg.SessionID)
	assert.Equal(t, r.Address, msg.Address)
	assert.Len(t, session.SessionID, 32)
	assert.Equal(t, h.clock.Now().Add(5*time.Minute), session.ExpiresAt)
	assert.EqualValues(t, 300, session.ExpiresIn(h.clock.Now()))

	stored, err := h.svc.repo.FindByID(ctx, session.SessionID)
	require.NoError(t, err)
	assert.NotEqual(t, msg.Code, stored.CodeHash)
	assert.Equal(t, 0, stored.AttemptCount)
	assert.False(t, stored.Consumed)
}

func TestVerifySucceedsOnceThenReportsConsumed(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	r := recipient()
	session, err := h.svc.Create(ctx, r, enums.OTPPurposeLogin)
	require.NoError(t, err)
	code := h.channel.last(t).Code

	h.clock.Advance(2 * time.Minute)
	result, err := h.svc.Verify(ctx, session.SessionID, code, enums.OTPPurposeLogin)
	require.NoError(t, err)
	assert.Equal(t, r.UserID, result.UserID)
	assert.Equal(t, enums.OTPPurposeLogin, result.Purpose)

	_, err = h.svc.Verify(ctx, session.SessionID, code, enums.OTPPurposeLogin)
	requireCode(t, err, pkgerrors.CodeSessionAlreadyConsumed)
}

func TestVerifyAfterExpiry(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	session, err := h.svc.Create(ctx, recipient(), enums.OTPPurposeLogin)
	require.NoError(t, err)
	code := h.channel.last(t).Code

	h.clock.Advance(6 * time.Minute)
	_, err = h.svc.Verify(ctx, session.SessionID, code, enums.OTPPurposeLogin)
	requireCode(t, err, pkgerrors.CodeSessionExpired)
}

func TestVerifyAttemptBudget(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	session, err := h.svc.Create(ctx, recipient(), enums.OTPPurposePickup)
	require.NoError(t, err)
	code := h.channel.last(t).Code
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}

	for i := 1; i <= testPolicy.MaxAttempts; i++ {
		_, err := h.svc.Verify(ctx, session.SessionID, wrong, enums.OTPPurposePickup)
		requireCode(t, err, pkgerrors.CodeCodeMismatch)
		details, ok := pkgerrors.As(err).Details().(map[string]any)
		require.True(t, ok)
		assert.Equal(t, testPolicy.MaxAttempts-i, details["attempts_remaining"])
	}

	_, err = h.svc.Verify(ctx, session.SessionID, code, enums.OTPPurposePickup)
	requireCode(t, err, pkgerrors.CodeAttemptsExceeded)

	stored, err := h.svc.repo.FindByID(ctx, session.SessionID)
	require.NoError(t, err)
	assert.Equal(t, testPolicy.MaxAttempts, stored.AttemptCount)
	assert.False(t, stored.Consumed)
}

func TestVerifyNeverSatisfiesAnotherPurpose(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	session, err := h.svc.Create(ctx, recipient(), enums.OTPPurposeLogin)
	require.NoError(t, err)
	code := h.channel.last(t).Code

	_, err = h.svc.Verify(ctx, session.SessionID, code, enums.OTPPurposePickup)
	requireCode(t, err, pkgerrors.CodeSessionNotFound)

	stored, err := h.svc.repo.FindByID(ctx, session.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.AttemptCount)

	_, err = h.svc.Verify(ctx, session.SessionID, code, enums.OTPPurposeLogin)
	require.NoError(t, err)
}

func TestVerifyUnknownSession(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.Verify(context.Background(), "deadbeef", "123456", enums.OTPPurposeLogin)
	requireCode(t, err, pkgerrors.CodeSessionNotFound)

	_, err = h.svc.Verify(context.Background(), "  ", "123456", enums.OTPPurposeLogin)
	requireCode(t, err, pkgerrors.CodeSessionNotFound)
}

func TestCreateSupersedesLiveSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	r := recipient()

	first, err := h.svc.Create(ctx, r, enums.OTPPurposeLogin)
	require.NoError(t, err)
	firstCode := h.channel.last(t).Code

	second, err := h.svc.Create(ctx, r, enums.OTPPurposeLogin)
	require.NoError(t, err)
	secondCode := h.channel.last(t).Code

	_, err = h.svc.Verify(ctx, first.SessionID, firstCode, enums.OTPPurposeLogin)
	requireCode(t, err, pkgerrors.CodeSessionAlreadyConsumed)

	stored, err := h.svc.repo.FindByID(ctx, first.SessionID)
	require.NoError(t, err)
	assert.True(t, stored.Superseded)

	_, err = h.svc.Verify(ctx, second.SessionID, secondCode, enums.OTPPurposeLogin)
	require.NoError(t, err)
}

func TestCreateKeepsOtherPurposeLive(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	r := recipient()

	login, err := h.svc.Create(ctx, r, enums.OTPPurposeLogin)
	require.NoError(t, err)
	loginCode := h.channel.last(t).Code

	_, err = h.svc.Create(ctx, r, enums.OTPPurposePickup)
	require.NoError(t, err)

	_, err = h.svc.Verify(ctx, login.SessionID, loginCode, enums.OTPPurposeLogin)
	require.NoError(t, err)
}

func TestCreateDeliveryFailureRollsBack(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	r := recipient()

	live, err := h.svc.Create(ctx, r, enums.OTPPurposeLogin)
	require.NoError(t, err)
	liveCode := h.channel.last(t).Code

	h.channel.err = errors.New("smtp down")
	_, err = h.svc.Create(ctx, r, enums.OTPPurposeLogin)
	requireCode(t, err, pkgerrors.CodeDeliveryFailure)

	var count int64
	require.NoError(t, h.client.DB().Table("otp_sessions").Where("user_id = ?", r.UserID).Count(&count).Error)
	assert.EqualValues(t, 1, count)

	h.channel.err = nil
	_, err = h.svc.Verify(ctx, live.SessionID, liveCode, enums.OTPPurposeLogin)
	require.NoError(t, err)
}

// conflictOnInsert fails the first n inserts with a unique violation, the
// way a concurrent Create for the same identity and purpose would.
type conflictOnInsert struct {
	Repository
	remaining *int
}

func (r conflictOnInsert) WithTx(tx *gorm.DB) Repository {
	return conflictOnInsert{Repository: r.Repository.WithTx(tx), remaining: r.remaining}
}

func (r conflictOnInsert) Insert(ctx context.Context, session *models.OTPSession) error {
	if *r.remaining > 0 {
		*r.remaining--
		return errors.New("UNIQUE constraint failed: otp_sessions.user_id, otp_sessions.purpose")
	}
	return r.Repository.Insert(ctx, session)
}

func TestCreateRetriesInsertConflict(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	failures := 1
	h.svc.repo = conflictOnInsert{Repository: h.svc.repo, remaining: &failures}

	session, err := h.svc.Create(ctx, recipient(), enums.OTPPurposeLogin)
	require.NoError(t, err)
	assert.Equal(t, 0, failures)
	assert.Len(t, h.channel.msgs, 1)

	_, err = h.svc.Verify(ctx, session.SessionID, h.channel.last(t).Code, enums.OTPPurposeLogin)
	require.NoError(t, err)
}

func TestCreateGivesUpAfterRepeatedConflicts(t *testing.T) {
	h := newHarness(t)
	failures := testPolicy.CASRetries + 1
	h.svc.repo = conflictOnInsert{Repository: h.svc.repo, remaining: &failures}

	_, err := h.svc.Create(context.Background(), recipient(), enums.OTPPurposeLogin)
	requireCode(t, err, pkgerrors.CodePersistenceConflict)
	assert.Equal(t, 0, failures)
	assert.Empty(t, h.channel.msgs)
}

func TestCreateDeliveryTimeout(t *testing.T) {
	h := newHarness(t)
	h.svc.deliveryTimeout = 20 * time.Millisecond
	h.svc.channel = delivery.ChannelFunc(func(ctx context.Context, _ delivery.Message) error {
		<-ctx.Done()
		return ctx.Err()
	})

	_, err := h.svc.Create(context.Background(), recipient(), enums.OTPPurposePickup)
	requireCode(t, err, pkgerrors.CodeDeliveryFailure)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCreateValidatesInput(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.Create(ctx, Recipient{Address: "x@example.com"}, enums.OTPPurposeLogin)
	requireCode(t, err, pkgerrors.CodeValidation)

	_, err = h.svc.Create(ctx, Recipient{UserID: uuid.New()}, enums.OTPPurposeLogin)
	requireCode(t, err, pkgerrors.CodeValidation)

	_, err = h.svc.Create(ctx, recipient(), enums.OTPPurpose("reset"))
	requireCode(t, err, pkgerrors.CodeValidation)
}

func TestConcurrentVerifyHasSingleWinner(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	session, err := h.svc.Create(ctx, recipient(), enums.OTPPurposePickup)
	require.NoError(t, err)
	code := h.channel.last(t).Code

	const workers = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		wins     int
		consumed int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.svc.Verify(ctx, session.SessionID, code, enums.OTPPurposePickup)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case pkgerrors.IsCode(err, pkgerrors.CodeSessionAlreadyConsumed):
				consumed++
			default:
				t.Errorf("unexpected error %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, workers-1, consumed)
}

func TestPurgeExpiredHonoursGraceWindow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	old, err := h.svc.Create(ctx, recipient(), enums.OTPPurposeLogin)
	require.NoError(t, err)

	h.clock.Advance(30 * time.Minute)
	fresh, err := h.svc.Create(ctx, recipient(), enums.OTPPurposeLogin)
	require.NoError(t, err)

	// old expired 25 minutes ago, fresh has not expired
	deleted, err := h.svc.PurgeExpired(ctx, h.clock.Now())
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)

	_, err = h.svc.Verify(ctx, old.SessionID, "000000", enums.OTPPurposeLogin)
	requireCode(t, err, pkgerrors.CodeSessionNotFound)

	_, err = h.svc.repo.FindByID(ctx, fresh.SessionID)
	require.NoError(t, err)
}

func TestPurgeKeepsSessionsInsideGrace(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.Create(ctx, recipient(), enums.OTPPurposeLogin)
	require.NoError(t, err)

	// expired 2 minutes ago, still within the 10 minute grace window
	h.clock.Advance(7 * time.Minute)
	deleted, err := h.svc.PurgeExpired(ctx, h.clock.Now())
	require.NoError(t, err)
	assert.EqualValues(t, 0, deleted)
}

func TestNewServiceValidatesParams(t *testing.T) {
	client := dbtest.Open(t)
	base := ServiceParams{
		Repo:    NewRepository(client.DB()),
		DB:      client,
		Channel: &captureChannel{},
		Config:  testPolicy,
	}

	_, err := NewService(base)
	require.NoError(t, err)

	noRepo := base
	noRepo.Repo = nil
	_, err = NewService(noRepo)
	require.Error(t, err)

	noChannel := base
	noChannel.Channel = nil
	_, err = NewService(noChannel)
	require.Error(t, err)

	badPolicy := base
	badPolicy.Config.MaxAttempts = 0
	_, err = NewService(badPolicy)
	require.Error(t, err)
}

func TestRecipientForPrefersPhone(t *testing.T) {
	phone := "+250788123456"
	assert.Equal(t, phone, RecipientFor(&models.User{Email: "a@example.com", Phone: &phone}).Address)
}

func TestRecipientForFallsBackToEmail(t *testing.T) {
	blank := " "
	assert.Equal(t, "a@example.com", RecipientFor(&models.User{Email: "a@example.com", Phone: &blank}).Address)
	assert.Equal(t, Recipient{}, RecipientFor(nil))
}

func TestSessionExpiresInRoundsUp(t *testing.T) {
	created := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	s := Session{CreatedAt: created, ExpiresAt: created.Add(5 * time.Minute)}

	assert.EqualValues(t, 300, s.ExpiresIn(created))
	assert.EqualValues(t, 300, s.ExpiresIn(created.Add(400*time.Millisecond)))
	assert.EqualValues(t, 1, s.ExpiresIn(s.ExpiresAt.Add(-time.Millisecond)))
	assert.EqualValues(t, 0, s.ExpiresIn(s.ExpiresAt))
	assert.EqualValues(t, 0, s.ExpiresIn(s.ExpiresAt.Add(time.Hour)))
}

func TestOwnerLeavesSessionUntouched(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	r := recipient()

	session, err := h.svc.Create(ctx, r, enums.OTPPurposePickup)
	require.NoError(t, err)

	owner, err := h.svc.Owner(ctx, session.SessionID, enums.OTPPurposePickup)
	require.NoError(t, err)
	assert.Equal(t, r.UserID, owner)

	_, err = h.svc.Owner(ctx, session.SessionID, enums.OTPPurposeLogin)
	requireCode(t, err, pkgerrors.CodeSessionNotFound)
	_, err = h.svc.Owner(ctx, "missing", enums.OTPPurposePickup)
	requireCode(t, err, pkgerrors.CodeSessionNotFound)

	stored, err := h.svc.repo.FindByID(ctx, session.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.AttemptCount)
	assert.False(t, stored.Consumed)
}

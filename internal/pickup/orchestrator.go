package pickup

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/agaseke/agaseke-backend/internal/otp"
	"github.com/agaseke/agaseke-backend/internal/purchases"
	"github.com/agaseke/agaseke-backend/internal/settlement"
	"github.com/agaseke/agaseke-backend/internal/users"
	"github.com/agaseke/agaseke-backend/pkg/config"
	"github.com/agaseke/agaseke-backend/pkg/db/models"
	"github.com/agaseke/agaseke-backend/pkg/enums"
	pkgerrors "github.com/agaseke/agaseke-backend/pkg/errors"
	"github.com/agaseke/agaseke-backend/pkg/logger"
	"github.com/agaseke/agaseke-backend/pkg/metrics"
	"github.com/agaseke/agaseke-backend/pkg/qrpayload"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	stageResolve     = "resolve_qr"
	stageCredentials = "verify_credentials"
	stageRequestOTP  = "request_otp"
	stageVerifyOTP   = "verify_otp"
	stageComplete    = "complete"
)

type payloadDecoder interface {
	Decode(payload string) (*qrpayload.Payload, error)
}

type userResolver interface {
	Resolve(ctx context.Context, lookup users.Lookup) (*models.User, error)
}

type credentialVerifier interface {
	Verify(ctx context.Context, identity, secret string) (*models.User, error)
}

type otpService interface {
	Create(ctx context.Context, recipient otp.Recipient, purpose enums.OTPPurpose) (*otp.Session, error)
	Verify(ctx context.Context, sessionID, code string, purpose enums.OTPPurpose) (*otp.VerificationResult, error)
	Owner(ctx context.Context, sessionID string, purpose enums.OTPPurpose) (uuid.UUID, error)
}

type purchaseService interface {
	GetMany(ctx context.Context, orderIDs []string) ([]models.Purchase, error)
	ListByBuyer(ctx context.Context, buyerID uuid.UUID, statuses ...enums.PurchaseStatus) ([]models.Purchase, error)
	Transition(ctx context.Context, input purchases.TransitionInput) (*purchases.TransitionResult, error)
}

type settler interface {
	Settle(ctx context.Context, purchase *models.Purchase, source string) (*settlement.Result, error)
}

// Service drives the agent-side handover: QR resolution, buyer credential
// check, buyer OTP and finally completion with settlement. Each step checks
// the attempt left by the previous one.
type Service interface {
	ResolveQR(ctx context.Context, agentID uuid.UUID, payload string) (*Resolution, error)
	VerifyCredentials(ctx context.Context, agentID uuid.UUID, input CredentialsInput) (*Attempt, error)
	RequestOTP(ctx context.Context, agentID uuid.UUID, identity string) (*OTPChallenge, error)
	VerifyOTP(ctx context.Context, agentID uuid.UUID, sessionID, code string) (*Attempt, error)
	Complete(ctx context.Context, agentID uuid.UUID, orderIDs []string) (*CompletionReport, error)
}

// ServiceParams wires the pickup orchestrator.
type ServiceParams struct {
	Codec      payloadDecoder
	Users      userResolver
	Verifier   credentialVerifier
	OTP        otpService
	Purchases  purchaseService
	Settlement settler
	Attempts   AttemptStore
	Config     config.PickupConfig
	Logger     *logger.Logger
	Metrics    *metrics.ProtocolMetrics
}

type service struct {
	codec       payloadDecoder
	users       userResolver
	verifier    credentialVerifier
	otp         otpService
	purchases   purchaseService
	settlement  settler
	attempts    AttemptStore
	maxRestarts int
	logg        *logger.Logger
	metrics     *metrics.ProtocolMetrics
	now         func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Codec == nil:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "qr codec required")
	case params.Users == nil:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "user resolver required")
	case params.Verifier == nil:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "credential verifier required")
	case params.OTP == nil:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "otp service required")
	case params.Purchases == nil:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "purchase service required")
	case params.Settlement == nil:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "settlement service required")
	case params.Attempts == nil:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "attempt store required")
	}
	restarts := params.Config.MaxRestarts
	if restarts < 0 {
		restarts = 0
	}
	return &service{
		codec:       params.Codec,
		users:       params.Users,
		verifier:    params.Verifier,
		otp:         params.OTP,
		purchases:   params.Purchases,
		settlement:  params.Settlement,
		attempts:    params.Attempts,
		maxRestarts: restarts,
		logg:        params.Logger,
		metrics:     params.Metrics,
		now:         func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) observe(stage string, err error) {
	s.metrics.PickupStage(stage, metrics.Outcome(err, pkgerrors.CodeOf))
}

// ResolveQR decodes the payload and returns the buyer's purchases from it that
// are waiting to be handed over.
func (s *service) ResolveQR(ctx context.Context, agentID uuid.UUID, payload string) (res *Resolution, err error) {
	defer func() { s.observe(stageResolve, err) }()

	if agentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "agent identity missing")
	}
	decoded, err := s.codec.Decode(payload)
	if err != nil {
		return nil, err
	}
	buyerID, err := uuid.Parse(decoded.BuyerRef)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeMalformedPayload, err, "malformed pickup payload")
	}
	buyer, err := s.users.Resolve(ctx, users.ByID(buyerID))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "buyer not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load buyer")
	}

	awaiting, err := s.purchases.ListByBuyer(ctx, buyer.ID,
		enums.PurchaseStatusAwaitingPickup,
		enums.PurchaseStatusAwaitingDelivery,
		enums.PurchaseStatusOutForDelivery,
	)
	if err != nil {
		return nil, err
	}
	wanted := make(map[string]struct{}, len(decoded.PurchaseRefs))
	for _, ref := range decoded.PurchaseRefs {
		wanted[ref] = struct{}{}
	}
	candidates := make([]models.Purchase, 0, len(awaiting))
	for _, p := range awaiting {
		if _, ok := wanted[p.OrderID]; ok {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no purchases in the payload are awaiting handover")
	}

	return &Resolution{
		Buyer:     users.FromModel(buyer),
		Purchases: purchases.FromModels(candidates),
	}, nil
}

// VerifyCredentials checks the buyer's own credentials on site and opens an
// attempt for the referenced purchases. Nothing is sent to the buyer yet.
func (s *service) VerifyCredentials(ctx context.Context, agentID uuid.UUID, input CredentialsInput) (attempt *Attempt, err error) {
	defer func() { s.observe(stageCredentials, err) }()

	if agentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "agent identity missing")
	}
	refs := normalizeRefs(input.OrderIDs)
	if len(refs) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one order id required")
	}

	buyer, err := s.verifier.Verify(ctx, input.Identity, input.Secret)
	if err != nil {
		return nil, err
	}
	if buyer.Role != enums.RoleBuyer {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "credentials do not belong to a buyer")
	}

	rows, err := s.purchases.GetMany(ctx, refs)
	if err != nil {
		return nil, err
	}
	for _, p := range rows {
		if p.BuyerID != buyer.ID {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "purchase does not belong to the verified buyer").
				WithDetails(map[string]any{"order_id": p.OrderID})
		}
		if !p.Status.IsAwaitingHandover() {
			return nil, pkgerrors.New(pkgerrors.CodeIllegalTransition, "purchase is not awaiting handover").
				WithDetails(map[string]any{"order_id": p.OrderID, "status": p.Status})
		}
	}

	attempt = &Attempt{
		AgentID:   agentID,
		BuyerID:   buyer.ID,
		OrderIDs:  refs,
		Stage:     StageCredentialsVerified,
		UpdatedAt: s.now(),
	}
	if err := s.attempts.Save(ctx, attempt); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save pickup attempt")
	}
	return attempt, nil
}

// RequestOTP sends a pickup code to the buyer's own address. It may be called
// again after a failed verification, up to the configured number of restarts.
func (s *service) RequestOTP(ctx context.Context, agentID uuid.UUID, identity string) (challenge *OTPChallenge, err error) {
	defer func() { s.observe(stageRequestOTP, err) }()

	if agentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "agent identity missing")
	}
	lookup := users.ParseLookup(identity)
	if lookup.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer identity required")
	}
	buyer, err := s.users.Resolve(ctx, lookup)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "buyer not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load buyer")
	}

	attempt, err := s.loadAttempt(ctx, agentID, buyer.ID)
	if err != nil {
		return nil, err
	}
	switch attempt.Stage {
	case StageCredentialsVerified, StageOTPRequested:
	default:
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "pickup code already verified")
	}
	if attempt.OTPRequests > s.maxRestarts {
		return nil, pkgerrors.New(pkgerrors.CodeAttemptsExceeded, "pickup restart limit reached; verify credentials again")
	}

	session, err := s.otp.Create(ctx, otp.RecipientFor(buyer), enums.OTPPurposePickup)
	if err != nil {
		return nil, err
	}

	attempt.Stage = StageOTPRequested
	attempt.SessionID = session.SessionID
	attempt.OTPRequests++
	attempt.UpdatedAt = s.now()
	if err := s.attempts.Save(ctx, attempt); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save pickup attempt")
	}

	return &OTPChallenge{
		SessionID:         session.SessionID,
		ExpiresIn:         session.ExpiresIn(session.CreatedAt),
		RestartsRemaining: s.maxRestarts - (attempt.OTPRequests - 1),
	}, nil
}

// VerifyOTP checks the code the buyer relayed. A failure leaves the attempt
// at the requested stage so the agent can request a fresh code.
func (s *service) VerifyOTP(ctx context.Context, agentID uuid.UUID, sessionID, code string) (attempt *Attempt, err error) {
	defer func() { s.observe(stageVerifyOTP, err) }()

	if agentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "agent identity missing")
	}
	buyerID, err := s.otp.Owner(ctx, sessionID, enums.OTPPurposePickup)
	if err != nil {
		return nil, err
	}
	attempt, err = s.loadAttempt(ctx, agentID, buyerID)
	if err != nil {
		return nil, err
	}
	// bind to the attempt before Verify consumes the code
	if attempt.Stage != StageOTPRequested || attempt.SessionID != strings.TrimSpace(sessionID) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "verification session does not match the pickup attempt")
	}

	result, err := s.otp.Verify(ctx, sessionID, code, enums.OTPPurposePickup)
	if err != nil {
		return nil, err
	}
	if result.UserID != attempt.BuyerID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "verification session does not match the pickup attempt")
	}

	attempt.Stage = StageOTPVerified
	attempt.UpdatedAt = s.now()
	if err := s.attempts.Save(ctx, attempt); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save pickup attempt")
	}
	return attempt, nil
}

// Complete hands over every referenced purchase and settles it. Failures are
// reported per purchase; a purchase completed without a stored settlement is
// picked up by the reconciliation job.
func (s *service) Complete(ctx context.Context, agentID uuid.UUID, orderIDs []string) (report *CompletionReport, err error) {
	defer func() { s.observe(stageComplete, err) }()

	if agentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "agent identity missing")
	}
	refs := normalizeRefs(orderIDs)
	if len(refs) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one order id required")
	}

	rows, err := s.purchases.GetMany(ctx, refs)
	if err != nil {
		return nil, err
	}
	buyerID := rows[0].BuyerID
	for _, p := range rows[1:] {
		if p.BuyerID != buyerID {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "purchases belong to different buyers")
		}
	}

	attempt, err := s.loadAttempt(ctx, agentID, buyerID)
	if err != nil {
		return nil, err
	}
	if attempt.Stage != StageOTPVerified {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "buyer has not confirmed the pickup code")
	}
	if !attempt.Covers(refs) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order ids were not part of the verified pickup")
	}

	report = newCompletionReport()
	for _, ref := range refs {
		s.completeOne(ctx, agentID, ref, report)
	}

	if err := s.attempts.Delete(ctx, agentID, buyerID); err != nil && s.logg != nil {
		s.logg.Error(ctx, "failed to close pickup attempt", err)
	}
	return report, nil
}

func (s *service) completeOne(ctx context.Context, agentID uuid.UUID, orderID string, report *CompletionReport) {
	res, err := s.purchases.Transition(ctx, purchases.TransitionInput{
		OrderID:   orderID,
		Event:     enums.PurchaseEventComplete,
		ActorID:   agentID,
		ActorRole: enums.RoleAgent,
	})
	if err != nil {
		report.fail(orderID, err)
		return
	}

	settled, err := s.settlement.Settle(ctx, res.Purchase, settlement.SourcePickup)
	if err != nil {
		if s.logg != nil {
			s.logg.Error(s.logg.WithOrderID(ctx, orderID), "settlement deferred to reconciliation", err)
		}
		report.fail(orderID, err)
		return
	}
	report.add(res.Purchase, settled)
}

func (s *service) loadAttempt(ctx context.Context, agentID, buyerID uuid.UUID) (*Attempt, error) {
	attempt, err := s.attempts.Load(ctx, agentID, buyerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load pickup attempt")
	}
	if attempt == nil {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "buyer credentials must be verified first")
	}
	return attempt, nil
}

func normalizeRefs(refs []string) []string {
	seen := make(map[string]struct{}, len(refs))
	out := make([]string, 0, len(refs))
	for _, ref := range refs {
		ref = strings.ToUpper(strings.TrimSpace(ref))
		if ref == "" {
			continue
		}
		if _, ok := seen[ref]; ok {
			continue
		}
		seen[ref] = struct{}{}
		out = append(out, ref)
	}
	return out
}

package enums

// OTPPurpose scopes a verification session to one workflow.
type OTPPurpose string

const (
	OTPPurposeLogin  OTPPurpose = "login"
	OTPPurposePickup OTPPurpose = "pickup"
)

var otpPurposes = newSet("otp purpose", OTPPurposeLogin, OTPPurposePickup)

func (o OTPPurpose) IsValid() bool { return otpPurposes.has(o) }

// ParseOTPPurpose converts raw input into a OTPPurpose.
func ParseOTPPurpose(value string) (OTPPurpose, error) { return otpPurposes.parse(value) }

func (o OTPPurpose) String() string { return string(o) }

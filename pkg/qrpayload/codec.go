// Package qrpayload encodes the buyer pickup payload carried in a QR code.
//
// The payload is a compact HS256 JWS without time claims, so encoding the
// same inputs always yields the same string. Decoding is strict: any
// structural damage or signature mismatch is reported as MALFORMED_PAYLOAD.
package qrpayload

import (
	"errors"
	"fmt"
	"strings"

	"github.com/agaseke/agaseke-backend/pkg/config"
	pkgerrors "github.com/agaseke/agaseke-backend/pkg/errors"
	"github.com/golang-jwt/jwt/v5"
)

const audience = "pickup"

var signingMethod = jwt.SigningMethodHS256

// Payload is the decoded content of a pickup QR code.
type Payload struct {
	BuyerRef     string   `json:"buyer_ref"`
	PurchaseRefs []string `json:"purchase_refs"`
}

type claims struct {
	Refs []string `json:"refs"`
	jwt.RegisteredClaims
}

// Codec signs and verifies pickup payloads.
type Codec struct {
	secret []byte
	issuer string
}

func NewCodec(cfg config.QRConfig) (*Codec, error) {
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, fmt.Errorf("qr secret is required")
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		return nil, fmt.Errorf("qr issuer is required")
	}
	return &Codec{secret: []byte(cfg.Secret), issuer: issuer}, nil
}

// Encode returns the signed payload for buyerRef and the ordered purchase refs.
func (c *Codec) Encode(purchaseRefs []string, buyerRef string) (string, error) {
	buyerRef = strings.TrimSpace(buyerRef)
	if buyerRef == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "buyer reference is required")
	}
	if len(purchaseRefs) == 0 {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "at least one purchase reference is required")
	}
	refs := make([]string, len(purchaseRefs))
	for i, ref := range purchaseRefs {
		ref = strings.TrimSpace(ref)
		if ref == "" {
			return "", pkgerrors.New(pkgerrors.CodeValidation, "purchase references must not be empty")
		}
		refs[i] = ref
	}

	token := jwt.NewWithClaims(signingMethod, claims{
		Refs: refs,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   c.issuer,
			Subject:  buyerRef,
			Audience: jwt.ClaimStrings{audience},
		},
	})
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "sign qr payload")
	}
	return signed, nil
}

// Decode verifies payload and returns its content. It never touches storage.
func (c *Codec) Decode(payload string) (*Payload, error) {
	if err := checkStructure(payload); err != nil {
		return nil, malformed(err)
	}

	parsed := &claims{}
	_, err := jwt.ParseWithClaims(
		payload,
		parsed,
		func(token *jwt.Token) (interface{}, error) {
			if token.Method != signingMethod {
				return nil, fmt.Errorf("unexpected signing method %s", token.Header["alg"])
			}
			return c.secret, nil
		},
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithStrictDecoding(),
		jwt.WithIssuer(c.issuer),
		jwt.WithAudience(audience),
	)
	if err != nil {
		return nil, malformed(err)
	}
	if strings.TrimSpace(parsed.Subject) == "" || len(parsed.Refs) == 0 {
		return nil, malformed(errors.New("payload missing buyer or purchases"))
	}
	for _, ref := range parsed.Refs {
		if strings.TrimSpace(ref) == "" {
			return nil, malformed(errors.New("payload contains empty purchase reference"))
		}
	}

	return &Payload{
		BuyerRef:     parsed.Subject,
		PurchaseRefs: parsed.Refs,
	}, nil
}

// checkStructure rejects anything but three non-empty base64url segments.
// The base64 decoder skips CR/LF, so those are rejected here explicitly.
func checkStructure(payload string) error {
	segments := strings.Split(payload, ".")
	if len(segments) != 3 {
		return errors.New("payload must have three segments")
	}
	for _, segment := range segments {
		if segment == "" {
			return errors.New("payload segment is empty")
		}
		for i := 0; i < len(segment); i++ {
			if !isBase64URL(segment[i]) {
				return fmt.Errorf("invalid payload byte at %d", i)
			}
		}
	}
	return nil
}

func isBase64URL(b byte) bool {
	switch {
	case b >= 'A' && b <= 'Z', b >= 'a' && b <= 'z', b >= '0' && b <= '9':
		return true
	case b == '-' || b == '_':
		return true
	}
	return false
}

func malformed(err error) error {
	return pkgerrors.Wrap(pkgerrors.CodeMalformedPayload, err, "malformed pickup payload")
}

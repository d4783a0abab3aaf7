package ai

import (
	"github.com/go-playground/validator/v10"
)

// Conditions is the closed set of marketplace condition labels.
var Conditions = []string{
	"New",
	"New (other)",
	"New with tags",
	"New without tags",
	"Pre-owned",
	"Used",
	"For parts or not working",
	"Seller refurbished",
	"Manufacturer refurbished",
}

const DefaultCondition = "Used"

type Pricing struct {
	Min        float64 `json:"min" validate:"gte=0"`
	Max        float64 `json:"max" validate:"gte=0"`
	Suggested  float64 `json:"suggested" validate:"gte=0"`
	Confidence float64 `json:"confidence" validate:"gte=0,lte=1"`
	Currency   string  `json:"currency" validate:"len=3,uppercase"`
	Reasoning  *string `json:"reasoning,omitempty"`
}

// Listing is the normalized, schema-valid output of one analysis.
// min <= suggested <= max is expected but not enforced.
type Listing struct {
	Title         string            `json:"title" validate:"required,max=255"`
	Description   string            `json:"description" validate:"required"`
	Condition     string            `json:"condition" validate:"listing_condition"`
	ItemSpecifics map[string]string `json:"itemSpecifics"`
	Pricing       Pricing           `json:"pricing"`
	Keywords      []string          `json:"keywords" validate:"dive,max=100"`
	CategoryID    *string           `json:"categoryId"`
	VisibleFlaws  []string          `json:"visibleFlaws"`
	AIConfidence  float64           `json:"aiConfidence" validate:"gte=0,lte=1"`
}

func IsCondition(s string) bool {
	for _, c := range Conditions {
		if c == s {
			return true
		}
	}
	return false
}

// RegisterValidations adds the listing tags to v.
func RegisterValidations(v *validator.Validate) error {
	return v.RegisterValidation("listing_condition", func(fl validator.FieldLevel) bool {
		return IsCondition(fl.Field().String())
	})
}

var listingValidator = newListingValidator()

func newListingValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := RegisterValidations(v); err != nil {
		panic(err)
	}
	return v
}

// ValidateListing checks l against the listing schema.
func ValidateListing(l *Listing) error {
	return listingValidator.Struct(l)
}

package enums

import "fmt"

// BuyType records where a checkout session originated.
type BuyType string

const (
	BuyTypeBuyNow       BuyType = "buy-now"
	BuyTypeCartCheckout BuyType = "cart-checkout"
)

var validBuyTypes = []BuyType{
	BuyTypeBuyNow,
	BuyTypeCartCheckout,
}

func (b BuyType) String() string {
	return string(b)
}

func (b BuyType) IsValid() bool {
	for _, candidate := range validBuyTypes {
		if candidate == b {
			return true
		}
	}
	return false
}

// ParseBuyType converts raw input into a BuyType; empty input means buy-now.
func ParseBuyType(value string) (BuyType, error) {
	if value == "" {
		return BuyTypeBuyNow, nil
	}
	for _, candidate := range validBuyTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid buy type %q", value)
}

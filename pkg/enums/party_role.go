package enums

import "fmt"

// PartyRole selects which side of a transaction a listing is viewed from.
type PartyRole string

const (
	PartyRoleBuyer  PartyRole = "buyer"
	PartyRoleSeller PartyRole = "seller"
)

// ParsePartyRole converts raw input into a PartyRole.
func ParsePartyRole(value string) (PartyRole, error) {
	switch PartyRole(value) {
	case PartyRoleBuyer, PartyRoleSeller:
		return PartyRole(value), nil
	default:
		return "", fmt.Errorf("invalid role %q", value)
	}
}

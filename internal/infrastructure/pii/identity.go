package pii

import (
	"fmt"

	"github.com/eventdesk/registration-system/internal/core/domain"
	"github.com/eventdesk/registration-system/internal/core/ports"
)

// Identity is the encrypted form of a registration's identity fields, as the
// repositories store it.
type Identity struct {
	FirstName   string
	LastName    string
	Email       string
	Phone       string
	Address     string
	CompanyName string
}

// Seal encrypts the identity fields of r.
func Seal(c ports.FieldCipher, r *domain.Registration) (Identity, error) {
	var out Identity
	for _, f := range []struct {
		name string
		in   string
		out  *string
	}{
		{"first_name", r.FirstName, &out.FirstName},
		{"last_name", r.LastName, &out.LastName},
		{"email", r.Email, &out.Email},
		{"phone", r.Phone, &out.Phone},
		{"address", r.Address, &out.Address},
		{"company_name", r.CompanyName, &out.CompanyName},
	} {
		v, err := c.Encrypt(f.in)
		if err != nil {
			return Identity{}, fmt.Errorf("seal %s: %w", f.name, err)
		}
		*f.out = v
	}
	return out, nil
}

// Open decrypts id into the identity fields of r.
func Open(c ports.FieldCipher, id Identity, r *domain.Registration) error {
	for _, f := range []struct {
		name string
		in   string
		out  *string
	}{
		{"first_name", id.FirstName, &r.FirstName},
		{"last_name", id.LastName, &r.LastName},
		{"email", id.Email, &r.Email},
		{"phone", id.Phone, &r.Phone},
		{"address", id.Address, &r.Address},
		{"company_name", id.CompanyName, &r.CompanyName},
	} {
		v, err := c.Decrypt(f.in)
		if err != nil {
			return fmt.Errorf("open %s: %w", f.name, err)
		}
		*f.out = v
	}
	return nil
}

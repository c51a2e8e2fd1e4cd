package hash

import "golang.org/x/crypto/bcrypt"

// MinPasswordLen is the shortest password the local directory accepts.
const MinPasswordLen = 6

func HashPassword(password string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
}

// CheckPassword reports whether password matches hash. An empty hash never
// matches; federated accounts have no password.
func CheckPassword(hash []byte, password string) bool {
	if len(hash) == 0 {
		return false
	}
	return bcrypt.CompareHashAndPassword(hash, []byte(password)) == nil
}

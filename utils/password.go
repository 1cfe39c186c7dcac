package utils

import "golang.org/x/crypto/bcrypt"

// Account passwords are stored as bcrypt hashes only. The default cost keeps
// login latency acceptable while remaining expensive to brute-force.
const passwordHashCost = bcrypt.DefaultCost

// HashPassword derives the stored hash for a plaintext password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), passwordHashCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword reports whether the plaintext matches the stored hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

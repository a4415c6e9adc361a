package account

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"golang.org/x/crypto/bcrypt"
)

const MinPasswordLength = 8

// commonPasswords is a short deny list of the most used passwords.
var commonPasswords = map[string]struct{}{}

func init() {
	for _, p := range []string{
		"password", "password1", "password123", "12345678", "123456789", "1234567890",
		"qwerty123", "qwertyuiop", "11111111", "00000000", "iloveyou", "letmein1",
		"admin123", "welcome1", "sunshine", "princess", "football", "baseball",
		"monkey123", "dragon123", "abc12345", "passw0rd", "trustno1", "superman",
		"asdfghjkl", "1q2w3e4r", "zaq12wsx", "qwerty12", "liveheart", "changeme",
	} {
		commonPasswords[p] = struct{}{}
	}
}

// dummyHash is compared against when the email is unknown so both paths
// cost one bcrypt comparison.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("liveheart-dummy-password"), bcrypt.DefaultCost)

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// PasswordRules returns the rules a new password must satisfy. They are
// evaluated one by one so every failing rule is reported.
func PasswordRules(u *User) []validation.Rule {
	return []validation.Rule{
		validation.Required.Error("enter a password"),
		validation.RuneLength(MinPasswordLength, 0).
			Error(fmt.Sprintf("this password is too short, it must contain at least %d characters", MinPasswordLength)),
		validation.By(notNumeric),
		validation.By(notCommon),
		validation.By(notSimilarTo(u)),
	}
}

// ValidatePassword checks password against every rule and joins the
// messages of all failures.
func ValidatePassword(password string, u *User) error {
	var msgs []string
	for _, rule := range PasswordRules(u) {
		if err := validation.Validate(password, rule); err != nil {
			msgs = append(msgs, err.Error())
		}
	}
	if len(msgs) == 0 {
		return nil
	}
	return errors.New(strings.Join(msgs, "; "))
}

func notNumeric(value interface{}) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return nil
		}
	}
	return errors.New("this password is entirely numeric")
}

func notCommon(value interface{}) error {
	s, _ := value.(string)
	if _, ok := commonPasswords[strings.ToLower(strings.TrimSpace(s))]; ok {
		return errors.New("this password is too common")
	}
	return nil
}

func notSimilarTo(u *User) validation.RuleFunc {
	return func(value interface{}) error {
		s, _ := value.(string)
		if u == nil || s == "" {
			return nil
		}
		pw := strings.ToLower(s)
		for _, attr := range []string{u.Username, u.EmailLocalPart(), u.Email} {
			attr = strings.ToLower(attr)
			if attr == "" {
				continue
			}
			if pw == attr || (len(attr) >= 4 && strings.Contains(pw, attr)) {
				return errors.New("the password is too similar to the username or email")
			}
		}
		return nil
	}
}

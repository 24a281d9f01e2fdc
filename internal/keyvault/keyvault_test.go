package keyvault

import (
	"errors"
	"strings"
	"testing"
)

const (
	testKeyOne     = "0000000000000000000000000000000000000000000000000000000000000001"
	testAddressOne = "TMVQGm1qAQYVdetCeGRRkTWYYrLXuHK2HC"
	testKeyTwo     = "0000000000000000000000000000000000000000000000000000000000000002"
	testAddressTwo = "TDvSsdrNM5eeXNL3czpa6AxLDHZA9nwe9K"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	envelope, err := Encrypt([]byte(testKeyOne), "correct horse battery staple")
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	parts := strings.Split(envelope, ":")
	if len(parts) != 4 {
		t.Fatalf("Expected 4 envelope parts, got %d", len(parts))
	}
	if len(parts[0]) != saltSize*2 {
		t.Errorf("Expected salt of %d hex chars, got %d", saltSize*2, len(parts[0]))
	}
	if len(parts[1]) != nonceSize*2 {
		t.Errorf("Expected nonce of %d hex chars, got %d", nonceSize*2, len(parts[1]))
	}
	if len(parts[2]) != tagSize*2 {
		t.Errorf("Expected tag of %d hex chars, got %d", tagSize*2, len(parts[2]))
	}
	if len(parts[3]) != len(testKeyOne)*2 {
		t.Errorf("Expected ciphertext of %d hex chars, got %d", len(testKeyOne)*2, len(parts[3]))
	}

	plaintext, err := Decrypt(envelope, "correct horse battery staple")
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	if string(plaintext) != testKeyOne {
		t.Errorf("Expected %s, got %s", testKeyOne, string(plaintext))
	}
}

func TestEncryptUsesFreshSaltAndNonce(t *testing.T) {
	a, err := Encrypt([]byte(testKeyOne), "secret")
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	b, err := Encrypt([]byte(testKeyOne), "secret")
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	if a == b {
		t.Error("Expected two encryptions of the same plaintext to differ")
	}
}

func TestDecryptFailsClosed(t *testing.T) {
	envelope, err := Encrypt([]byte(testKeyOne), "secret")
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	parts := strings.Split(envelope, ":")

	flipped := []byte(parts[3])
	if flipped[0] == '0' {
		flipped[0] = '1'
	} else {
		flipped[0] = '0'
	}

	tests := []struct {
		name     string
		envelope string
		secret   string
	}{
		{"wrong secret", envelope, "not the secret"},
		{"tampered ciphertext", strings.Join([]string{parts[0], parts[1], parts[2], string(flipped)}, ":"), "secret"},
		{"missing part", strings.Join(parts[:3], ":"), "secret"},
		{"not hex", "zz:" + strings.Join(parts[1:], ":"), "secret"},
		{"short nonce", strings.Join([]string{parts[0], parts[1][:8], parts[2], parts[3]}, ":"), "secret"},
		{"empty", "", "secret"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plaintext, err := Decrypt(tt.envelope, tt.secret)
			if !errors.Is(err, ErrDecryptionFailed) {
				t.Fatalf("Expected ErrDecryptionFailed, got %v", err)
			}
			if plaintext != nil {
				t.Errorf("Expected no plaintext, got %q", plaintext)
			}
		})
	}
}

func TestEmptySecretRejected(t *testing.T) {
	if _, err := Encrypt([]byte(testKeyOne), ""); !errors.Is(err, ErrEmptySecret) {
		t.Errorf("Expected ErrEmptySecret from Encrypt, got %v", err)
	}
	if _, err := Decrypt("a:b:c:d", ""); !errors.Is(err, ErrEmptySecret) {
		t.Errorf("Expected ErrEmptySecret from Decrypt, got %v", err)
	}
	if _, err := NewVault(""); !errors.Is(err, ErrEmptySecret) {
		t.Errorf("Expected ErrEmptySecret from NewVault, got %v", err)
	}
}

func TestValidateFormat(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{testKeyOne, true},
		{"0x" + testKeyOne, true},
		{strings.ToUpper("ab" + testKeyOne[2:]), true},
		{testKeyOne[:63], false},
		{testKeyOne + "0", false},
		{"zz" + testKeyOne[2:], false},
		{"", false},
		{"0x", false},
	}
	for _, tt := range tests {
		if got := ValidateFormat(tt.input); got != tt.want {
			t.Errorf("ValidateFormat(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestDeriveAddress(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{testKeyOne, testAddressOne},
		{"0x" + testKeyOne, testAddressOne},
		{testKeyTwo, testAddressTwo},
	}
	for _, tt := range tests {
		got, err := DeriveAddress(tt.key)
		if err != nil {
			t.Fatalf("DeriveAddress(%q) failed: %v", tt.key, err)
		}
		if got != tt.want {
			t.Errorf("DeriveAddress(%q) = %s, want %s", tt.key, got, tt.want)
		}
	}
}

func TestParseKeyFromBytes(t *testing.T) {
	for _, input := range []string{testKeyTwo, "0x" + testKeyTwo, " " + testKeyTwo + "\n"} {
		material := []byte(input)
		key, err := ParseKey(material)
		if err != nil {
			t.Fatalf("ParseKey(%q) failed: %v", input, err)
		}
		if got := AddressOf(key); got != testAddressTwo {
			t.Errorf("ParseKey(%q) controls %s, want %s", input, got, testAddressTwo)
		}
		if string(material) != input {
			t.Errorf("ParseKey modified its input: %q", material)
		}
	}

	for _, input := range []string{"", "zz" + testKeyTwo[2:], testKeyTwo[1:], testKeyTwo + "00"} {
		if _, err := ParseKey([]byte(input)); err == nil {
			t.Errorf("Expected ParseKey(%q) to fail", input)
		}
	}
}

func TestZeroKeyWipesScalar(t *testing.T) {
	key, err := ParseKey([]byte("ffffffffffffffffffffffffffffffffbaaedce6af48a03bbfd25e8cd0364140"))
	if err != nil {
		t.Fatalf("ParseKey failed: %v", err)
	}
	words := key.D.Bits()
	if len(words) == 0 {
		t.Fatal("Expected a non-zero scalar")
	}

	ZeroKey(key)

	if key.D.Sign() != 0 {
		t.Errorf("Expected D to be zero, got %s", key.D)
	}
	for i, w := range words {
		if w != 0 {
			t.Errorf("Expected word %d of the old scalar to be wiped, got %x", i, w)
		}
	}

	ZeroKey(nil)
}

func TestVaultSealOpenRotate(t *testing.T) {
	v, err := NewVault("first")
	if err != nil {
		t.Fatalf("NewVault failed: %v", err)
	}
	next, err := NewVault("second")
	if err != nil {
		t.Fatalf("NewVault failed: %v", err)
	}

	if _, err := v.Seal("not a key"); err == nil {
		t.Error("Expected Seal to reject malformed key")
	}

	envelope, err := v.Seal("0x" + testKeyTwo)
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}

	rotated, err := v.Rotate(envelope, next)
	if err != nil {
		t.Fatalf("Rotate failed: %v", err)
	}
	if _, err := v.Open(rotated); !errors.Is(err, ErrDecryptionFailed) {
		t.Errorf("Expected old vault to fail on rotated envelope, got %v", err)
	}

	plaintext, err := next.Open(rotated)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if string(plaintext) != testKeyTwo {
		t.Errorf("Expected normalized key %s, got %s", testKeyTwo, string(plaintext))
	}

	Zero(plaintext)
	for i, b := range plaintext {
		if b != 0 {
			t.Fatalf("Expected byte %d to be zeroed, got %d", i, b)
		}
	}

	if strings.Contains(v.String(), "first") {
		t.Error("Expected String to redact the master secret")
	}
}

func TestGenerateMasterSecret(t *testing.T) {
	a, err := GenerateMasterSecret()
	if err != nil {
		t.Fatalf("GenerateMasterSecret failed: %v", err)
	}
	b, _ := GenerateMasterSecret()
	if len(a) != 64 {
		t.Errorf("Expected 64 hex chars, got %d", len(a))
	}
	if a == b {
		t.Error("Expected distinct secrets")
	}
}

package cryptoutil

import (
	"bytes"
	"encoding/base64"
	"regexp"
	"testing"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}

	plaintext := []byte("dearest family, the garden key is under the third stone")
	env, err := Encrypt(plaintext, key)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	got, err := Decrypt(env, key)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("round trip mismatch: got %q want %q", got, plaintext)
	}
}

func TestDecryptRejectsTampering(t *testing.T) {
	key, _ := GenerateKey()
	env, err := Encrypt([]byte("secret"), key)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	flipFirstByte := func(s string) string {
		raw, _ := base64.StdEncoding.DecodeString(s)
		raw[0] ^= 0xff
		return base64.StdEncoding.EncodeToString(raw)
	}

	tampered := env
	tampered.Ciphertext = flipFirstByte(env.Ciphertext)
	if _, err := Decrypt(tampered, key); err == nil {
		t.Fatal("expected error for tampered ciphertext")
	}

	tampered = env
	tampered.AuthTag = flipFirstByte(env.AuthTag)
	if _, err := Decrypt(tampered, key); err == nil {
		t.Fatal("expected error for tampered auth tag")
	}

	tampered = env
	tampered.Nonce = flipFirstByte(env.Nonce)
	if _, err := Decrypt(tampered, key); err == nil {
		t.Fatal("expected error for tampered nonce")
	}
}

func TestDecryptRejectsWrongKey(t *testing.T) {
	key, _ := GenerateKey()
	other, _ := GenerateKey()

	env, err := Encrypt([]byte("secret"), key)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if _, err := Decrypt(env, other); err == nil {
		t.Fatal("expected error for wrong key")
	}
}

func TestEncryptUsesFreshNonce(t *testing.T) {
	key, _ := GenerateKey()
	a, err := Encrypt([]byte("same plaintext"), key)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	b, err := Encrypt([]byte("same plaintext"), key)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if a.Nonce == b.Nonce {
		t.Fatal("nonce reused across encryptions")
	}
	if a.Ciphertext == b.Ciphertext {
		t.Fatal("identical ciphertext for identical plaintext")
	}
}

func TestDeriveKeyDeterministic(t *testing.T) {
	salt, err := GenerateSalt()
	if err != nil {
		t.Fatalf("GenerateSalt: %v", err)
	}

	k1 := DeriveKey("correct horse battery staple", salt)
	k2 := DeriveKey("correct horse battery staple", salt)
	if !bytes.Equal(k1, k2) {
		t.Fatal("same password+salt derived different keys")
	}
	if len(k1) != KeyLength {
		t.Fatalf("derived key length %d, want %d", len(k1), KeyLength)
	}

	k3 := DeriveKey("wrong password", salt)
	if bytes.Equal(k1, k3) {
		t.Fatal("different passwords derived the same key")
	}

	otherSalt, _ := GenerateSalt()
	k4 := DeriveKey("correct horse battery staple", otherSalt)
	if bytes.Equal(k1, k4) {
		t.Fatal("different salts derived the same key")
	}
}

func TestEnvelopeMarshalParse(t *testing.T) {
	key, _ := GenerateKey()
	env, err := Encrypt([]byte("payload"), key)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	raw, err := env.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	parsed, err := ParseEnvelope(raw)
	if err != nil {
		t.Fatalf("ParseEnvelope: %v", err)
	}
	if parsed != env {
		t.Fatalf("parsed envelope differs: %+v vs %+v", parsed, env)
	}

	if _, err := ParseEnvelope([]byte(`{"ciphertext":"abc"}`)); err == nil {
		t.Fatal("expected error for envelope missing nonce and tag")
	}
	if _, err := ParseEnvelope([]byte(`not json`)); err == nil {
		t.Fatal("expected error for malformed blob")
	}
}

func TestNewToken(t *testing.T) {
	a, err := NewToken()
	if err != nil {
		t.Fatalf("NewToken: %v", err)
	}
	b, err := NewToken()
	if err != nil {
		t.Fatalf("NewToken: %v", err)
	}
	if a == b {
		t.Fatal("tokens are not unique")
	}
	if len(a) < 40 {
		t.Fatalf("token too short: %d chars", len(a))
	}
}

func TestNewRecoveryCodeFormat(t *testing.T) {
	code, err := NewRecoveryCode()
	if err != nil {
		t.Fatalf("NewRecoveryCode: %v", err)
	}
	matched, _ := regexp.MatchString(`^([0-9A-F]{4}-){7}[0-9A-F]{4}$`, code)
	if !matched {
		t.Fatalf("unexpected recovery code format: %s", code)
	}
}

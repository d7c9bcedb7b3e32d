package payment

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"net/url"
	"sync"
	"testing"
)

var (
	keyOnce sync.Once
	keys    [2]*rsa.PrivateKey
)

// testKeys returns an app key and a gateway key, generated once per run.
func testKeys(t *testing.T) (app, gateway *rsa.PrivateKey) {
	t.Helper()
	keyOnce.Do(func() {
		for i := range keys {
			k, err := rsa.GenerateKey(rand.Reader, 2048)
			if err != nil {
				panic(err)
			}
			keys[i] = k
		}
	})
	return keys[0], keys[1]
}

func privatePEM(k *rsa.PrivateKey) string {
	return string(pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(k)}))
}

func publicPEM(t *testing.T, k *rsa.PublicKey) string {
	t.Helper()
	der, err := x509.MarshalPKIXPublicKey(k)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
}

func TestSignContent(t *testing.T) {
	v := url.Values{}
	v.Set("b", "2")
	v.Set("a", "1")
	v.Set("empty", "")
	v.Set("sign", "xxx")
	v.Set("sign_type", "RSA2")

	if got, want := signContent(v, "sign"), "a=1&b=2&sign_type=RSA2"; got != want {
		t.Errorf("request content = %q, want %q", got, want)
	}
	if got, want := signContent(v, "sign", "sign_type"), "a=1&b=2"; got != want {
		t.Errorf("notify content = %q, want %q", got, want)
	}
}

func TestSignVerifyRSA2(t *testing.T) {
	app, other := testKeys(t)
	sig, err := signRSA2(app, "a=1&b=2")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if !verifyRSA2(&app.PublicKey, "a=1&b=2", sig) {
		t.Error("valid signature rejected")
	}
	if verifyRSA2(&app.PublicKey, "a=1&b=3", sig) {
		t.Error("signature accepted for altered content")
	}
	if verifyRSA2(&other.PublicKey, "a=1&b=2", sig) {
		t.Error("signature accepted with wrong key")
	}
	if verifyRSA2(&app.PublicKey, "a=1&b=2", "not base64!") {
		t.Error("garbage signature accepted")
	}
}

func TestParseKeys(t *testing.T) {
	app, _ := testKeys(t)

	if _, err := ParsePrivateKey(privatePEM(app)); err != nil {
		t.Errorf("PKCS#1 PEM: %v", err)
	}
	pkcs8, err := x509.MarshalPKCS8PrivateKey(app)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ParsePrivateKey(base64.StdEncoding.EncodeToString(pkcs8)); err != nil {
		t.Errorf("bare base64 PKCS#8: %v", err)
	}
	if _, err := ParsePublicKey(publicPEM(t, &app.PublicKey)); err != nil {
		t.Errorf("PKIX PEM: %v", err)
	}
	if _, err := ParsePublicKey(base64.StdEncoding.EncodeToString(x509.MarshalPKCS1PublicKey(&app.PublicKey))); err != nil {
		t.Errorf("bare base64 PKCS#1 public: %v", err)
	}
	if _, err := ParsePrivateKey(""); err == nil {
		t.Error("empty private key accepted")
	}
	if _, err := ParsePublicKey("%%%"); err == nil {
		t.Error("garbage public key accepted")
	}
}

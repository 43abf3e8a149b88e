package secrets

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/klog/v2"
)

// Keys used in the API secret of a bot
const (
	PasswordKey  = "password"
	JWTSecretKey = "jwt-secret"
)

// Lengths of the generated values
const (
	PasswordLength  = 16
	JWTSecretLength = 32
)

// APIUser is the fixed user name of the freqtrade REST API
const APIUser = "freqtrade"

const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Generate returns a random alphanumeric string of the given length
func Generate(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("invalid secret length %d", length)
	}
	limit := big.NewInt(int64(len(alphabet)))
	out := make([]byte, length)
	for i := range out {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("could not read random source: %w", err)
		}
		out[i] = alphabet[n.Int64()]
	}
	return string(out), nil
}

// Credentials are the generated values stored in the API secret
type Credentials struct {
	Password  string
	JWTSecret string
}

// NewCredentials generates a fresh password and JWT signing secret
func NewCredentials() (Credentials, error) {
	password, err := Generate(PasswordLength)
	if err != nil {
		return Credentials{}, err
	}
	jwt, err := Generate(JWTSecretLength)
	if err != nil {
		return Credentials{}, err
	}
	return Credentials{Password: password, JWTSecret: jwt}, nil
}

// APICredentials looks up the REST API login of a bot in its API secret
func APICredentials(ctx context.Context, clientset kubernetes.Interface, namespace string, secretName string) (user string, password string, err error) {
	secret, err := clientset.CoreV1().Secrets(namespace).Get(ctx, secretName, metav1.GetOptions{})
	if err != nil {
		klog.Errorf("Could not get secret %s/%s, error is %s", namespace, secretName, err)
		return "", "", err
	}
	// Secrets created via stringData are returned in Data by the API server,
	// but fake clients keep them in StringData
	data, ok := secret.Data[PasswordKey]
	if ok {
		return APIUser, string(data), nil
	}
	value, ok := secret.StringData[PasswordKey]
	if !ok {
		return "", "", fmt.Errorf("secret %s does not contain key %s", secretName, PasswordKey)
	}
	return APIUser, value, nil
}

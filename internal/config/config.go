package config

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/SherClockHolmes/webpush-go"
)

type Config struct {
	ListenAddr   string
	DatabasePath string

	RedisAddr         string
	RedisDB           int
	WorkerConcurrency int

	ExpoURL         string
	ExpoAccessToken string

	JWTSecret string
	VAPIDKeys *VAPIDKeys
}

type VAPIDKeys struct {
	PublicKey  string
	PrivateKey string
	Subject    string
}

func Load() *Config {
	return &Config{
		ListenAddr:        getEnv("LISTEN_ADDR", ":8080"),
		DatabasePath:      getEnv("DATABASE_PATH", "coursebeat.db"),
		RedisAddr:         getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisDB:           getEnvInt("REDIS_DB", 0),
		WorkerConcurrency: getEnvInt("WORKER_CONCURRENCY", 4),
		ExpoURL:           getEnv("EXPO_PUSH_URL", ""),
		ExpoAccessToken:   getEnv("EXPO_ACCESS_TOKEN", ""),
		JWTSecret:         loadOrGenerateJWTSecret(),
		VAPIDKeys:         loadVAPIDKeys(),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func generateRandomSecret() string {
	bytes := make([]byte, 32)
	rand.Read(bytes)
	return base64.URLEncoding.EncodeToString(bytes)
}

func loadOrGenerateJWTSecret() string {
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		return secret
	}

	keysDir := getKeysDirectory()
	secretFile := filepath.Join(keysDir, "jwt-secret.key")

	if secretData, err := os.ReadFile(secretFile); err == nil {
		secret := strings.TrimSpace(string(secretData))
		if secret != "" {
			return secret
		}
	}

	secret := generateRandomSecret()

	if err := os.MkdirAll(keysDir, 0700); err == nil {
		if err := os.WriteFile(secretFile, []byte(secret), 0600); err != nil {
			fmt.Printf("Warning: failed to save JWT secret to disk: %v\n", err)
			fmt.Println("Secret will be regenerated on next restart unless set via JWT_SECRET")
		}
	}

	return secret
}

// loadVAPIDKeys prefers the environment, then the keys directory, and as a
// last resort generates a fresh pair and persists it so browser subscriptions
// survive restarts.
func loadVAPIDKeys() *VAPIDKeys {
	subject := getEnv("VAPID_SUBJECT", "mailto:admin@coursebeat.app")

	publicKey := os.Getenv("VAPID_PUBLIC_KEY")
	privateKey := os.Getenv("VAPID_PRIVATE_KEY")
	if publicKey != "" && privateKey != "" {
		return &VAPIDKeys{PublicKey: publicKey, PrivateKey: privateKey, Subject: subject}
	}

	keysDir := getKeysDirectory()
	publicKeyFile := filepath.Join(keysDir, "vapid-public.key")
	privateKeyFile := filepath.Join(keysDir, "vapid-private.key")

	if publicKeyData, err := os.ReadFile(publicKeyFile); err == nil {
		if privateKeyData, err := os.ReadFile(privateKeyFile); err == nil {
			return &VAPIDKeys{
				PublicKey:  strings.TrimSpace(string(publicKeyData)),
				PrivateKey: strings.TrimSpace(string(privateKeyData)),
				Subject:    subject,
			}
		}
	}

	privateKey, publicKey, err := webpush.GenerateVAPIDKeys()
	if err != nil {
		panic("failed to generate VAPID keys: " + err.Error())
	}

	if err := os.MkdirAll(keysDir, 0700); err == nil {
		if err := os.WriteFile(publicKeyFile, []byte(publicKey), 0600); err == nil {
			_ = os.WriteFile(privateKeyFile, []byte(privateKey), 0600)
		} else {
			fmt.Printf("Warning: failed to save VAPID keys to disk: %v\n", err)
			fmt.Println("Keys will be regenerated on next restart unless set via environment")
		}
	}

	return &VAPIDKeys{PublicKey: publicKey, PrivateKey: privateKey, Subject: subject}
}

func getKeysDirectory() string {
	execPath, err := os.Executable()
	if err != nil {
		return "keys"
	}
	return filepath.Join(filepath.Dir(execPath), "keys")
}

package tests

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/inclawbate/staking-engine/internal/config"
	"github.com/jarcoal/httpmock"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func GetConfig() *config.Config {
	return config.NewConfig()
}

// GetDbConfigFromEnv reads the integration database settings. Host is empty when unset.
func GetDbConfigFromEnv() *config.DatabaseConfig {
	port, _ := strconv.Atoi(config.StringWithDefault(os.Getenv("STAKING_ENGINE_DATABASE_PORT"), "5432"))
	return &config.DatabaseConfig{
		Host:     os.Getenv("STAKING_ENGINE_DATABASE_HOST"),
		Port:     port,
		User:     os.Getenv("STAKING_ENGINE_DATABASE_USER"),
		Password: os.Getenv("STAKING_ENGINE_DATABASE_PASSWORD"),
		DbName:   os.Getenv("STAKING_ENGINE_DATABASE_DB_NAME"),
		SSLMode:  "disable",
	}
}

func HasIntegrationDatabase() bool {
	return os.Getenv("STAKING_ENGINE_DATABASE_HOST") != ""
}

func GenerateTestDbName() (string, error) {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("test_%s", id[:16]), nil
}

// NewMockGorm returns a gorm handle on the postgres dialector backed by sqlmock.
func NewMockGorm() (*gorm.DB, sqlmock.Sqlmock, error) {
	db, mock, err := sqlmock.New()
	if err != nil {
		return nil, nil, err
	}
	grm, err := gorm.Open(postgres.New(postgres.Config{
		Conn:                 db,
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, nil, err
	}
	return grm, mock, nil
}

// RpcResponder answers JSON-RPC posts from a method -> raw JSON result table. Unknown methods
// get a method-not-found error.
func RpcResponder(results map[string]string) httpmock.Responder {
	return func(req *http.Request) (*http.Response, error) {
		body := struct {
			Method string `json:"method"`
		}{}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			return nil, err
		}
		result, ok := results[body.Method]
		if !ok {
			return httpmock.NewStringResponse(200, `{"jsonrpc":"2.0","id":1,"error":{"code":-32601,"message":"method not found"}}`), nil
		}
		return httpmock.NewStringResponse(200, fmt.Sprintf(`{"jsonrpc":"2.0","id":1,"result":%s}`, result)), nil
	}
}

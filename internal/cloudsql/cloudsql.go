package cloudsql

import (
	"fmt"
	"os"
	"strings"
)

// ResolveURL picks the Postgres connection string. An explicitly configured
// URL wins; otherwise the Cloud SQL Unix-socket variables are consulted so
// the same binary runs on Cloud Run without a DATABASE_URL.
//
// Cloud SQL needs INSTANCE_CONNECTION_NAME (project:region:instance) plus
// DB_USER and DB_NAME; DB_PASSWORD is optional under IAM auth.
func ResolveURL(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}

	instance := os.Getenv("INSTANCE_CONNECTION_NAME")
	if instance == "" {
		return "", fmt.Errorf("neither DATABASE_URL nor INSTANCE_CONNECTION_NAME is set")
	}
	user := os.Getenv("DB_USER")
	name := os.Getenv("DB_NAME")
	if user == "" || name == "" {
		return "", fmt.Errorf("DB_USER and DB_NAME must be set when using INSTANCE_CONNECTION_NAME")
	}

	// Cloud Run mounts instances under /cloudsql/<instance>.
	socket := "/cloudsql/" + instance
	if password := os.Getenv("DB_PASSWORD"); password != "" {
		return fmt.Sprintf("host=%s user=%s password=%s dbname=%s sslmode=disable",
			socket, user, password, name), nil
	}
	return fmt.Sprintf("host=%s user=%s dbname=%s sslmode=disable", socket, user, name), nil
}

// Describe summarizes the chosen connection for startup logs, with the
// password redacted.
func Describe(url string) string {
	if strings.HasPrefix(url, "host=/cloudsql/") {
		return "cloud_sql " + os.Getenv("INSTANCE_CONNECTION_NAME")
	}
	return "direct " + redactPassword(url)
}

func redactPassword(connStr string) string {
	if strings.HasPrefix(connStr, "postgresql://") || strings.HasPrefix(connStr, "postgres://") {
		parts := strings.SplitN(connStr, "@", 2)
		if len(parts) == 2 {
			userParts := strings.Split(parts[0], ":")
			if len(userParts) >= 3 {
				return userParts[0] + "://" + userParts[1] + ":***@" + parts[1]
			}
		}
	}
	return connStr
}

package db

import (
	"fmt"
	"strings"
	"time"

	"github.com/gocql/gocql"
)

// ScyllaConfig describes a Scylla/Cassandra cluster.
type ScyllaConfig struct {
	Hosts       []string
	Port        int
	Keyspace    string
	Consistency string
	Replication int
	Username    string
	Password    string
}

// ConnectScylla makes sure the keyspace exists, then opens a session bound to it.
func ConnectScylla(cfg ScyllaConfig) (*gocql.Session, error) {
	if len(cfg.Hosts) == 0 || strings.TrimSpace(cfg.Hosts[0]) == "" {
		return nil, fmt.Errorf("scylla hosts required")
	}
	cluster := gocql.NewCluster(cfg.Hosts...)
	if cfg.Port > 0 {
		cluster.Port = cfg.Port
	}
	cluster.Timeout = 5 * time.Second
	cluster.Consistency = ParseConsistency(cfg.Consistency)
	if cfg.Username != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: cfg.Username,
			Password: cfg.Password,
		}
	}

	bootstrap, err := cluster.CreateSession()
	if err != nil {
		return nil, err
	}
	err = EnsureKeyspace(bootstrap, cfg.Keyspace, cfg.Replication)
	bootstrap.Close()
	if err != nil {
		return nil, fmt.Errorf("ensure keyspace %s: %w", cfg.Keyspace, err)
	}

	cluster.Keyspace = cfg.Keyspace
	return cluster.CreateSession()
}

// EnsureKeyspace creates keyspace with SimpleStrategy replication if missing.
func EnsureKeyspace(session *gocql.Session, keyspace string, replicationFactor int) error {
	if replicationFactor <= 0 {
		replicationFactor = 3
	}
	stmt := fmt.Sprintf("CREATE KEYSPACE IF NOT EXISTS %s WITH replication = {'class': 'SimpleStrategy', 'replication_factor': %d}", keyspace, replicationFactor)
	return session.Query(stmt).Exec()
}

// ParseConsistency maps a consistency name to gocql, defaulting to QUORUM.
func ParseConsistency(c string) gocql.Consistency {
	switch strings.ToUpper(strings.TrimSpace(c)) {
	case "ONE":
		return gocql.One
	case "LOCAL_ONE":
		return gocql.LocalOne
	case "LOCAL_QUORUM":
		return gocql.LocalQuorum
	case "ALL":
		return gocql.All
	default:
		return gocql.Quorum
	}
}

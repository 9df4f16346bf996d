package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

func ConnectPostgres(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return db, nil
}

// ConnectPrimaryReplica abre o primário e a réplica de leitura.
// Quando as DSNs coincidem, a mesma conexão atende os dois caminhos.
func ConnectPrimaryReplica(primaryDSN, replicaDSN string) (primary, replica *sql.DB, err error) {
	primary, err = ConnectPostgres(primaryDSN)
	if err != nil {
		return nil, nil, err
	}
	if replicaDSN == "" || replicaDSN == primaryDSN {
		return primary, primary, nil
	}
	replica, err = ConnectPostgres(replicaDSN)
	if err != nil {
		primary.Close()
		return nil, nil, fmt.Errorf("replica: %w", err)
	}
	return primary, replica, nil
}

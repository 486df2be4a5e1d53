// Package graph exports the co-presence network and handoff candidates of a
// published snapshot to Neo4j for interactive exploration.
package graph

import (
	"context"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/rotisserie/eris"

	"github.com/sells-group/caselink/internal/config"
)

// Tx runs Cypher statements inside one managed write transaction.
type Tx interface {
	Run(ctx context.Context, cypher string, params map[string]any) error
}

// driver is the subset of neo4j.DriverWithContext the sink uses.
type driver interface {
	VerifyConnectivity(ctx context.Context) error
	ExecuteWrite(ctx context.Context, database string, work func(Tx) error) error
	Close(ctx context.Context) error
}

type neo4jDriver struct {
	d neo4j.DriverWithContext
}

func (n *neo4jDriver) VerifyConnectivity(ctx context.Context) error {
	return n.d.VerifyConnectivity(ctx)
}

func (n *neo4jDriver) ExecuteWrite(ctx context.Context, database string, work func(Tx) error) error {
	session := n.d.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: database,
		AccessMode:   neo4j.AccessModeWrite,
	})
	defer session.Close(ctx) //nolint:errcheck

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return nil, work(&managedTx{tx: tx})
	})
	return err
}

func (n *neo4jDriver) Close(ctx context.Context) error {
	return n.d.Close(ctx)
}

type managedTx struct {
	tx neo4j.ManagedTransaction
}

// Run executes cypher and drains its result so errors surface here.
func (m *managedTx) Run(ctx context.Context, cypher string, params map[string]any) error {
	res, err := m.tx.Run(ctx, cypher, params)
	if err != nil {
		return err
	}
	_, err = res.Consume(ctx)
	return err
}

// dial opens a Neo4j driver and verifies connectivity.
func dial(ctx context.Context, cfg config.GraphConfig) (driver, error) {
	auth := neo4j.BasicAuth(cfg.Username, cfg.Password, "")
	d, err := neo4j.NewDriverWithContext(cfg.URI, auth, func(c *neo4j.Config) {
		c.MaxConnectionPoolSize = 10
		c.MaxConnectionLifetime = time.Hour
		c.ConnectionAcquisitionTimeout = 30 * time.Second
	})
	if err != nil {
		return nil, eris.Wrap(err, "graph: create driver")
	}

	vctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := d.VerifyConnectivity(vctx); err != nil {
		_ = d.Close(ctx)
		return nil, eris.Wrapf(err, "graph: connect %s", cfg.URI)
	}
	return &neo4jDriver{d: d}, nil
}

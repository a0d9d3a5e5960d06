// Package storage provides a SQL-table broker built on GORM.
//
// This package includes:
//   - Broker: a core.Broker and core.Putter over a "units" table
//   - PoolConfig: connection pool tuning for the underlying *sql.DB
//   - OpenSQLite: a ready-to-use broker over a sqlite database
//
// The table-backed broker mirrors beanstalkd's semantics closely enough to
// run workers without a beanstalkd server: tubes, priorities, delays,
// time-to-run reservations with redelivery, burying and kicking. It runs on
// any GORM dialect; tests and local development use sqlite.
package storage

package migrations

import "embed"

// PostgresFS holds the trader config schema, applied in lexical order.
//
//go:embed postgres/*.sql
var PostgresFS embed.FS

// ClickhouseFS holds the attempt log schema, applied in lexical order.
//
//go:embed clickhouse/*.sql
var ClickhouseFS embed.FS

// Package migrations схема локальной реплики клиента
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS

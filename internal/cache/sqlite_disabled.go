//go:build !sqlite
// +build !sqlite

package cache

import (
	"errors"

	"contestbot/pkg/logx"
)

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	_ = cfg
	_ = log
	return nil, errors.New("sqlite cache not built: build with -tags sqlite")
}

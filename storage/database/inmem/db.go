// Package inmemdb implements the repositories in memory, for tests and local development.
package inmemdb

import (
	"sync"
	"time"

	"github.com/pgri-okutimur/anggota/core/member"
	"github.com/pgri-okutimur/anggota/core/region"
	"github.com/pgri-okutimur/anggota/core/user"
)

type (
	DB struct {
		user    *userTable
		member  *memberTable
		region  *regionTable
		setting *settingTable
	}

	userTable struct {
		table map[int]*user.User
		pk    int
		mutex sync.RWMutex
	}

	memberTable struct {
		table map[int]*member.Member
		pk    int
		mutex sync.RWMutex
	}

	regionTable struct {
		tables map[region.Tier]map[int]region.Unit
		mutex  sync.RWMutex
	}

	settingTable struct {
		values    map[string]string
		updatedAt time.Time
		mutex     sync.RWMutex
	}
)

func Open() *DB {
	rt := &regionTable{tables: make(map[region.Tier]map[int]region.Unit)}
	for _, t := range region.Tiers {
		rt.tables[t] = make(map[int]region.Unit)
	}
	return &DB{
		user:    &userTable{table: make(map[int]*user.User)},
		member:  &memberTable{table: make(map[int]*member.Member)},
		region:  rt,
		setting: &settingTable{values: make(map[string]string)},
	}
}

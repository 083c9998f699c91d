// Package peerdb is a local cache of telegram peers and their access
// hashes. Access hashes are session-scoped secrets telegram hands out on
// first contact; caching them locally avoids a resolve round trip every
// time a worker needs to address a peer it has already seen.
package peerdb

import (
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/blockedby/tgcrawler/internal/logger"
	"github.com/blockedby/tgcrawler/internal/telegram"
)

// Peer is one cached telegram entity, keyed by the signed peer id.
type Peer struct {
	SignedID   int64  `gorm:"primaryKey"`
	Kind       string `gorm:"size:16"`
	AccessHash int64
	Username   string `gorm:"index"`
	Title      string
	UpdatedAt  time.Time
}

// DB wraps the sqlite-backed peer cache.
type DB struct {
	db  *gorm.DB
	log *logger.Logger
}

// Open opens (creating if needed) the cache at path.
func Open(path string) (*DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open peer cache: %w", err)
	}
	if err := db.AutoMigrate(&Peer{}); err != nil {
		return nil, fmt.Errorf("migrate peer cache: %w", err)
	}
	return &DB{db: db, log: logger.With("peerdb")}, nil
}

// RememberChat upserts a resolved chat.
func (d *DB) RememberChat(info *telegram.ChatInfo) error {
	if info.InternalID == 0 {
		return nil // invite-only chat not joined yet, nothing to key on
	}
	return d.upsert(&Peer{
		SignedID:   info.InternalID,
		Kind:       string(info.Kind),
		AccessHash: info.AccessHash,
		Username:   info.Username,
		Title:      info.Title,
	})
}

// RememberUser upserts a seen member.
func (d *DB) RememberUser(m *telegram.MemberInfo) error {
	return d.upsert(&Peer{
		SignedID:   m.UserID,
		Kind:       string(telegram.PeerUser),
		AccessHash: m.AccessHash,
		Username:   m.Username,
		Title:      m.FirstName + " " + m.LastName,
	})
}

func (d *DB) upsert(p *Peer) error {
	p.UpdatedAt = time.Now()
	if err := d.db.Save(p).Error; err != nil {
		return fmt.Errorf("save peer %d: %w", p.SignedID, err)
	}
	return nil
}

// Lookup returns the cached peer for a signed id, nil when unseen.
func (d *DB) Lookup(signedID int64) (*Peer, error) {
	var p Peer
	err := d.db.First(&p, "signed_id = ?", signedID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup peer %d: %w", signedID, err)
	}
	return &p, nil
}

// LookupUsername returns the cached peer for a username, nil when unseen.
func (d *DB) LookupUsername(username string) (*Peer, error) {
	var p Peer
	err := d.db.First(&p, "username = ?", username).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup username %s: %w", username, err)
	}
	return &p, nil
}

// Close releases the underlying connection.
func (d *DB) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

package engine

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"hash"

	"github.com/l1jgo/forge/internal/core/ecs"
	"golang.org/x/crypto/blake2b"
	"gopkg.in/yaml.v3"
)

// Hash returns a BLAKE2b-256 digest of the frame number, the singleton and
// every active entity. Entities are visited by id and components by name;
// each value is YAML-encoded.
func (e *Engine) Hash() (string, error) {
	if e.inFlight.Load() {
		return "", ErrFrameInFlight
	}
	h, _ := blake2b.New256(nil)
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], e.world.Frame())
	h.Write(buf[:])

	if err := hashEntity(h, e.world.Singleton()); err != nil {
		return "", err
	}
	for _, ent := range e.world.Registry().Sorted() {
		if err := hashEntity(h, ent); err != nil {
			return "", err
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func hashEntity(h hash.Hash, ent *ecs.Entity) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(ent.ID()))
	h.Write(buf[:])
	for _, t := range ent.Types() {
		v, _ := ent.Value(t)
		data, err := yaml.Marshal(v)
		if err != nil {
			return fmt.Errorf("hash entity %s component %s: %w", ent.ID(), t.Name(), err)
		}
		h.Write([]byte(t.Name()))
		h.Write([]byte{0})
		h.Write(data)
	}
	return nil
}

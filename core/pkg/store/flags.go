package store

import (
	"fmt"

	"github.com/hashicorp/go-memdb"
	"github.com/open-feature/flagx/core/pkg/logger"
	"github.com/open-feature/flagx/core/pkg/model"
	"go.uber.org/zap"
)

const (
	flagsTable     = "flags"
	idIndex        = "id"
	scheduledIndex = "scheduled"
	gradualIndex   = "gradual"
)

// IStore is the read side of the flag registry.
type IStore interface {
	Get(id string) (model.Flag, bool)
	GetAll() []model.Flag
	Scheduled() []model.Flag
	Gradual() []model.Flag
}

// State is the authoritative registry of flag definitions. Reads run against
// immutable memdb snapshots; writes are serialized by memdb's writer lock.
type State struct {
	db     *memdb.MemDB
	logger *logger.Logger
}

func NewFlags(log *logger.Logger) *State {
	if log == nil {
		log = logger.NewLogger(nil)
	}

	schema := &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			flagsTable: {
				Name: flagsTable,
				Indexes: map[string]*memdb.IndexSchema{
					idIndex: {
						Name:    idIndex,
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "ID", Lowercase: false},
					},
					scheduledIndex: {
						Name:   scheduledIndex,
						Unique: false,
						Indexer: &memdb.ConditionalIndex{
							Conditional: func(obj interface{}) (bool, error) {
								return obj.(model.Flag).Schedule != nil, nil
							},
						},
					},
					gradualIndex: {
						Name:   gradualIndex,
						Unique: false,
						Indexer: &memdb.ConditionalIndex{
							Conditional: func(obj interface{}) (bool, error) {
								return obj.(model.Flag).IsGradual(), nil
							},
						},
					},
				},
			},
		},
	}

	// the schema is static, an error here is a programming mistake
	db, err := memdb.NewMemDB(schema)
	if err != nil {
		panic(err)
	}

	return &State{
		db:     db,
		logger: log.Component("store"),
	}
}

// Set inserts or replaces a flag and returns the definition it replaced, if any.
func (f *State) Set(flag model.Flag) (model.Flag, bool, error) {
	txn := f.db.Txn(true)
	defer txn.Abort()

	previous, existed, err := first(txn, flag.ID)
	if err != nil {
		return model.Flag{}, false, err
	}
	if err := txn.Insert(flagsTable, flag.Clone()); err != nil {
		return model.Flag{}, false, fmt.Errorf("unable to store flag %s: %w", flag.ID, err)
	}
	txn.Commit()

	f.logger.Debug("flag stored", zap.String(logger.FlagIDField, flag.ID), zap.Bool("replaced", existed))
	return previous, existed, nil
}

// Update applies fn to the stored flag inside a single write transaction.
// It returns false when the flag does not exist.
func (f *State) Update(id string, fn func(*model.Flag)) (model.Flag, bool, error) {
	txn := f.db.Txn(true)
	defer txn.Abort()

	flag, ok, err := first(txn, id)
	if err != nil || !ok {
		return model.Flag{}, false, err
	}
	fn(&flag)
	if err := txn.Insert(flagsTable, flag); err != nil {
		return model.Flag{}, false, fmt.Errorf("unable to update flag %s: %w", id, err)
	}
	txn.Commit()

	return flag.Clone(), true, nil
}

func (f *State) Get(id string) (model.Flag, bool) {
	txn := f.db.Txn(false)
	defer txn.Abort()

	flag, ok, err := first(txn, id)
	if err != nil {
		f.logger.Error("flag lookup failed", zap.String(logger.FlagIDField, id), zap.Error(err))
		return model.Flag{}, false
	}
	return flag, ok
}

// GetAll returns copies of every flag ordered by id.
func (f *State) GetAll() []model.Flag {
	return f.query(idIndex+"_prefix", "")
}

// Scheduled returns the flags carrying a schedule window.
func (f *State) Scheduled() []model.Flag {
	return f.query(scheduledIndex, true)
}

// Gradual returns the flags using the gradual rollout strategy.
func (f *State) Gradual() []model.Flag {
	return f.query(gradualIndex, true)
}

// Delete removes a flag and reports whether it existed.
func (f *State) Delete(id string) bool {
	txn := f.db.Txn(true)
	defer txn.Abort()

	n, err := txn.DeleteAll(flagsTable, idIndex, id)
	if err != nil {
		f.logger.Error("flag delete failed", zap.String(logger.FlagIDField, id), zap.Error(err))
		return false
	}
	txn.Commit()
	return n > 0
}

func (f *State) query(index string, args ...interface{}) []model.Flag {
	txn := f.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get(flagsTable, index, args...)
	if err != nil {
		f.logger.Error("flag query failed", zap.String("index", index), zap.Error(err))
		return nil
	}

	flags := []model.Flag{}
	for obj := it.Next(); obj != nil; obj = it.Next() {
		flags = append(flags, obj.(model.Flag).Clone())
	}
	return flags
}

func first(txn *memdb.Txn, id string) (model.Flag, bool, error) {
	raw, err := txn.First(flagsTable, idIndex, id)
	if err != nil {
		return model.Flag{}, false, fmt.Errorf("unable to read flag %s: %w", id, err)
	}
	flag, ok := raw.(model.Flag)
	if !ok {
		return model.Flag{}, false, nil
	}
	return flag.Clone(), true, nil
}

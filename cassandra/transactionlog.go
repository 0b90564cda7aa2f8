package cassandra

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"

	"github.com/sharedcode/txflow"
	"github.com/sharedcode/txflow/redis"
)

const (
	// DateHourLayout format mask string.
	DateHourLayout = "2006-01-02T15"

	// Transaction logging only needs the least consistency level because the logs
	// only aid crash-recovery sweeps of workflows that never reached a terminal
	// state, a rare and non-urgent cleanup.
	transactionLoggingConsistency = gocql.LocalOne
)

// Now is a lambda to allow unit tests to inject a replayable time.Now.
var Now = time.Now

// NilUUID is the zero gocql.UUID.
var NilUUID = gocql.UUID(txflow.NilUUID)

// IsNil reports whether id is the nil/empty UUID.
func IsNil(id gocql.UUID) bool {
	return txflow.UUID(id).IsNil()
}

type transactionLog struct {
	hourLockKey *txflow.LockKey
	cache       txflow.Cache
}

// NewTransactionLog returns a TransactionLog backed by the Cassandra t_log table,
// using a Redis lock to serialize crash-recovery sweeps of the current hour bucket
// across competing sweeper processes.
func NewTransactionLog() txflow.TransactionLog {
	c := redis.NewClient()
	return &transactionLog{
		cache:       c,
		hourLockKey: c.CreateLockKeys([]string{"HBP"})[0],
	}
}

// Add appends a transaction log record.
func (tl *transactionLog) Add(ctx context.Context, tid txflow.UUID, payload []byte) error {
	if connection == nil {
		return fmt.Errorf("cassandra connection is closed, call OpenConnection(config) to open it")
	}

	insertStatement := fmt.Sprintf("INSERT INTO %s.t_log (id, c_f, c_f_p) VALUES(?,?,?);", connection.Config.Keyspace)
	qry := connection.Session.Query(insertStatement, gocql.UUID(tid), 0, payload).WithContext(ctx).Consistency(transactionLoggingConsistency)
	return qry.Exec()
}

// Remove deletes all transaction log(t_log) records for the given transaction id.
func (tl *transactionLog) Remove(ctx context.Context, tid txflow.UUID) error {
	if connection == nil {
		return fmt.Errorf("cassandra connection is closed, call OpenConnection(config) to open it")
	}

	deleteStatement := fmt.Sprintf("DELETE FROM %s.t_log WHERE id = ?;", connection.Config.Keyspace)
	qry := connection.Session.Query(deleteStatement, gocql.UUID(tid)).WithContext(ctx).Consistency(transactionLoggingConsistency)
	return qry.Exec()
}

// NewUUID generates a time-ordered id, pass-through to gocql.UUIDFromTime.
func (tl *transactionLog) NewUUID() txflow.UUID {
	return txflow.UUID(gocql.UUIDFromTime(Now().UTC()))
}

// GetOne claims the oldest unresolved transaction log entry older than the cleanup
// window by locking the current hour bucket, so only one sweeper processes it at a time.
func (tl *transactionLog) GetOne(ctx context.Context) (txflow.UUID, string, []txflow.KeyValuePair[int, []byte], error) {
	duration := 7 * time.Hour

	if ok, err := tl.cache.Lock(ctx, duration, []*txflow.LockKey{tl.hourLockKey}); !ok || err != nil {
		return txflow.NilUUID, "", nil, nil
	}

	hour, tid, err := tl.getOne(ctx)
	if err != nil {
		tl.cache.Unlock(ctx, []*txflow.LockKey{tl.hourLockKey})
		return txflow.NilUUID, hour, nil, err
	}
	if IsNil(tid) {
		tl.cache.Unlock(ctx, []*txflow.LockKey{tl.hourLockKey})
		return txflow.NilUUID, "", nil, nil
	}

	r, err := tl.getLogsDetails(ctx, tid)
	if err != nil {
		tl.cache.Unlock(ctx, []*txflow.LockKey{tl.hourLockKey})
		return txflow.NilUUID, "", nil, err
	}
	// Re-check to close the race between the claim and the fetch above.
	if ok, err := tl.cache.IsLocked(ctx, []*txflow.LockKey{tl.hourLockKey}); !ok || err != nil {
		tl.cache.Unlock(ctx, []*txflow.LockKey{tl.hourLockKey})
		return txflow.NilUUID, "", nil, nil
	}
	return txflow.UUID(tid), hour, r, nil
}

// GetOneOfHour resumes a sweep of a previously claimed hour bucket.
func (tl *transactionLog) GetOneOfHour(ctx context.Context, hour string) (txflow.UUID, []txflow.KeyValuePair[int, []byte], error) {
	if hour == "" {
		return txflow.NilUUID, nil, nil
	}
	if connection == nil {
		return txflow.NilUUID, nil, fmt.Errorf("cassandra connection is closed, call OpenConnection(config) to open it")
	}

	t, err := time.Parse(DateHourLayout, hour)
	if err != nil {
		return txflow.NilUUID, nil, err
	}

	// Cap sweeps of a given hour at 4 hours so a stalled sweeper eventually releases
	// the hour bucket lock (set to a 7hr TTL) for another process to claim.
	mh, _ := time.Parse(DateHourLayout, Now().Format(DateHourLayout))
	if mh.Sub(t).Hours() > 4 {
		tl.cache.Unlock(ctx, []*txflow.LockKey{tl.hourLockKey})
		return txflow.NilUUID, nil, nil
	}

	hrid := gocql.UUIDFromTime(t)

	selectStatement := fmt.Sprintf("SELECT id FROM %s.t_log WHERE id < ? LIMIT 1 ALLOW FILTERING;", connection.Config.Keyspace)
	qry := connection.Session.Query(selectStatement, hrid).WithContext(ctx).Consistency(transactionLoggingConsistency)

	iter := qry.Iter()
	var tid gocql.UUID
	for iter.Scan(&tid) {
	}
	if err := iter.Close(); err != nil {
		return txflow.NilUUID, nil, err
	}

	if IsNil(tid) {
		tl.cache.Unlock(ctx, []*txflow.LockKey{tl.hourLockKey})
		return txflow.NilUUID, nil, nil
	}

	r, err := tl.getLogsDetails(ctx, tid)
	return txflow.UUID(tid), r, err
}

func (tl *transactionLog) getOne(ctx context.Context) (string, gocql.UUID, error) {
	mh, _ := time.Parse(DateHourLayout, Now().Format(DateHourLayout))
	// 70 minute capped hour: transactions have a max 60min commit window plus a
	// 10 minute gap to avoid overlap with the hour still being written.
	cappedHour := mh.Add(-70 * time.Minute)
	cappedHourTID := gocql.UUIDFromTime(cappedHour)

	if connection == nil {
		return "", NilUUID, fmt.Errorf("cassandra connection is closed, call OpenConnection(config) to open it")
	}

	selectStatement := fmt.Sprintf("SELECT id FROM %s.t_log WHERE id < ? LIMIT 1 ALLOW FILTERING;", connection.Config.Keyspace)
	qry := connection.Session.Query(selectStatement, cappedHourTID).WithContext(ctx).Consistency(transactionLoggingConsistency)

	iter := qry.Iter()
	var tid gocql.UUID
	for iter.Scan(&tid) {
	}
	if err := iter.Close(); err != nil {
		return "", NilUUID, err
	}
	return cappedHour.Format(DateHourLayout), tid, nil
}

func (tl *transactionLog) getLogsDetails(ctx context.Context, tid gocql.UUID) ([]txflow.KeyValuePair[int, []byte], error) {
	if connection == nil {
		return nil, fmt.Errorf("cassandra connection is closed, call OpenConnection(config) to open it")
	}

	selectStatement := fmt.Sprintf("SELECT c_f, c_f_p FROM %s.t_log WHERE id = ?;", connection.Config.Keyspace)
	qry := connection.Session.Query(selectStatement, tid).WithContext(ctx).Consistency(transactionLoggingConsistency)

	iter := qry.Iter()
	r := make([]txflow.KeyValuePair[int, []byte], 0, iter.NumRows())
	var cf int
	var cfp []byte
	for iter.Scan(&cf, &cfp) {
		r = append(r, txflow.KeyValuePair[int, []byte]{Key: cf, Value: cfp})
	}
	if err := iter.Close(); err != nil {
		return r, err
	}
	return r, nil
}

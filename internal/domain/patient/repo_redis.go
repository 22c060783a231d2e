package patient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisPatientPrefix = "patient:"
	redisEmailPrefix   = "patient:email:"
	redisCreatedIndex  = "patients:by_created_at"
)

// storedPatient is the JSON document kept under patient:<id>.
type storedPatient struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Birthdate time.Time `json:"birthdate"`
	CreatedAt time.Time `json:"created_at"`
}

// saveScript claims the email and writes the document and index entry in
// one atomic step, so a claim can never exist without its patient.
//
// KEYS: email key, patient key, created index. ARGV: id, document, score.
var saveScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
	return 0
end
redis.call("SET", KEYS[1], ARGV[1])
redis.call("SET", KEYS[2], ARGV[2])
redis.call("ZADD", KEYS[3], ARGV[3], ARGV[1])
return 1
`)

type patientRepoRedis struct {
	client redis.Cmdable
}

// NewRedisRepo stores patients as JSON documents. Email uniqueness and the
// sorted set scored by creation time are maintained by a single Lua script.
func NewRedisRepo(client redis.Cmdable) Repository {
	return &patientRepoRedis{client: client}
}

func (r *patientRepoRedis) Save(ctx context.Context, p *Patient) (*Patient, error) {
	doc, err := json.Marshal(storedPatient{
		ID:        p.ID(),
		Name:      p.Name(),
		Email:     p.Email(),
		Birthdate: p.Birthdate(),
		CreatedAt: p.CreatedAt(),
	})
	if err != nil {
		return nil, fmt.Errorf("patient encode: %w", err)
	}

	created, err := saveScript.Run(ctx, r.client,
		[]string{redisEmailPrefix + p.Email(), redisPatientPrefix + p.ID(), redisCreatedIndex},
		p.ID(), doc, p.CreatedAt().UnixMilli(),
	).Int()
	if err != nil {
		return nil, fmt.Errorf("patient save: %w", err)
	}
	if created == 0 {
		return nil, ErrEmailTaken
	}
	return p, nil
}

func (r *patientRepoRedis) FindByID(ctx context.Context, id string) (*Patient, error) {
	raw, err := r.client.Get(ctx, redisPatientPrefix+id).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrPatientNotFound
		}
		return nil, fmt.Errorf("patient get by id: %w", err)
	}
	return decodePatient(raw)
}

func (r *patientRepoRedis) FindByEmail(ctx context.Context, email string) (*Patient, error) {
	id, err := r.client.Get(ctx, redisEmailPrefix+email).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrPatientNotFound
		}
		return nil, fmt.Errorf("patient get by email: %w", err)
	}
	return r.FindByID(ctx, id)
}

func (r *patientRepoRedis) FindAll(ctx context.Context) ([]*Patient, error) {
	ids, err := r.client.ZRevRange(ctx, redisCreatedIndex, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("patient list: %w", err)
	}
	patients := make([]*Patient, 0, len(ids))
	if len(ids) == 0 {
		return patients, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = redisPatientPrefix + id
	}
	docs, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("patient list: %w", err)
	}
	for _, doc := range docs {
		raw, ok := doc.(string)
		if !ok {
			// Document removed outside the service; skip the dangling index entry.
			continue
		}
		p, err := decodePatient(raw)
		if err != nil {
			return nil, fmt.Errorf("patient list: %w", err)
		}
		patients = append(patients, p)
	}
	return patients, nil
}

func decodePatient(raw string) (*Patient, error) {
	var sp storedPatient
	if err := json.Unmarshal([]byte(raw), &sp); err != nil {
		return nil, fmt.Errorf("patient decode: %w", err)
	}
	return NewPatient(sp.ID, sp.Name, sp.Email, sp.Birthdate, sp.CreatedAt)
}

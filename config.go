package txflow

import (
	"encoding/json"
	"os"
)

// RedisOptions mirrors the fields needed to open a Redis connection without
// importing the redis package here, which would create an import cycle
// (the redis package depends on this one for the Cache contract).
type RedisOptions struct {
	Address  string
	Password string
	DB       int
}

// Configuration contains the caching (Redis) and durable log/blob backend
// (Cassandra, S3) host parameters used to wire up the default Strategy set.
type Configuration struct {
	RedisOptions      RedisOptions
	CassandraHosts    []string
	CassandraKeyspace string
	S3HostEndpointUrl string
	S3Region          string
	S3Username        string
	S3Password        string
	S3Bucket          string
	ErasureDataShards   int
	ErasureParityShards int
	ParticipationPolicy string
}

// LoadConfiguration reads a JSON file and loads it into a Configuration.
func LoadConfiguration(filename string) (Configuration, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return Configuration{}, err
	}

	var c Configuration
	if err := json.Unmarshal(data, &c); err != nil {
		return Configuration{}, err
	}
	return c, nil
}

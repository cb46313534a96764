// Package redistest implements support code for testing with Redis.
//
// Tests run against an in-process miniredis server unless REDIS_IP points
// at a real Redis.
package redistest

import (
	"math/rand"
	"net"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis"
)

// RedisCredentials holds the credentials for connecting to Redis.
type RedisCredentials struct {
	Username string
	Password string
	IP       string
}

// GetCredentials gets the Redis credentials from environment variables.
func GetCredentials() (rc RedisCredentials, ok bool) {
	u := os.Getenv("REDIS_USER")
	p := os.Getenv("REDIS_PASS")
	i := os.Getenv("REDIS_IP")
	if len(i) > 0 {
		return RedisCredentials{
			Username: u,
			Password: p,
			IP:       i,
		}, true
	}
	return RedisCredentials{}, false
}

// Server is a Redis server usable by a test.
type Server struct {
	Host     string
	Port     int
	Password string

	// Mini is set when the server is an in-process miniredis.
	Mini *miniredis.Miniredis
}

// Addr returns the host:port address of the server.
func (s Server) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// Start returns the Redis server to run a test against. The server is shut
// down when the test completes.
func Start(t *testing.T) Server {
	t.Helper()
	if creds, ok := GetCredentials(); ok {
		host, port := splitAddr(t, creds.IP)
		return Server{Host: host, Port: port, Password: creds.Password}
	}
	return StartMini(t)
}

// StartMini always starts an in-process miniredis server, for tests that
// must control the server or would disturb a shared one.
func StartMini(t *testing.T) Server {
	t.Helper()
	m := miniredis.RunT(t)
	host, port := splitAddr(t, m.Addr())
	return Server{Host: host, Port: port, Mini: m}
}

func splitAddr(t *testing.T, addr string) (string, int) {
	t.Helper()
	host, p, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("invalid Redis address %q: %v", addr, err)
	}
	port, err := strconv.Atoi(p)
	if err != nil {
		t.Fatalf("invalid Redis port in %q: %v", addr, err)
	}
	return host, port
}

// Connect connects to the server and returns the Client object. The client
// is closed when the test completes.
func (s Server) Connect(t *testing.T) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:         s.Addr(),
		Password:     s.Password,
		DB:           0,
		MaxRetries:   3,
		DialTimeout:  10 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

// Name returns a queue name unique to the test.
func Name(t *testing.T) string {
	return t.Name() + strconv.Itoa(rand.Int())
}

package config

import (
	"os"

	"github.com/joho/godotenv"
)

// LoadDotEnvs loads .env files in priority order; earlier files win because
// godotenv never overwrites a variable that is already set.
func LoadDotEnvs(dir string) {
	env := os.Getenv("STUDLY_ENV")
	if env == "" {
		env = "dev"
	}
	if dir != "" && dir[len(dir)-1] != '/' {
		dir += "/"
	}
	for _, name := range []string{".env." + env + ".local", ".env.local", ".env." + env, ".env"} {
		_ = godotenv.Load(dir + name)
	}
}

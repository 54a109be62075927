package registry

import (
	"log"

	"github.com/EmpoweredVote/VR-Backend/internal/boundary"
	"github.com/EmpoweredVote/VR-Backend/internal/db"
	"github.com/EmpoweredVote/VR-Backend/internal/jobs"
)

func Init() {
	if err := db.EnsureSchema(db.DB, "registry"); err != nil {
		log.Fatal("Failed to ensure schema registry: ", err)
	}

	if err := db.DB.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp"`).Error; err != nil {
		log.Fatal("Failed to enable uuid-ossp extension:", err)
	}

	if err := db.DB.AutoMigrate(
		&Voter{},
		&VoterLocation{},
	); err != nil {
		log.Fatal("Failed to auto-migrate registry tables", err)
	}

	// One primary location per voter, enforced at the database level.
	if err := db.DB.Exec(`
        CREATE UNIQUE INDEX IF NOT EXISTS voter_locations_one_primary
        ON registry.voter_locations (voter_id) WHERE is_primary;
    `).Error; err != nil {
		log.Fatal("Failed to create voter_locations_one_primary", err)
	}

	if err := jobs.Init(db.DB); err != nil {
		log.Fatal("Failed to init jobs: ", err)
	}
	if err := boundary.Init(db.DB); err != nil {
		log.Fatal("Failed to init boundaries: ", err)
	}
}

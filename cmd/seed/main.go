package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"course-payments/internal/config"
	"course-payments/internal/domain/model"
	pg "course-payments/internal/infra/db/postgres"
)

// seed creates a course with quarterly cohorts and an optional learner so the payment
// flow can be exercised locally. Re-running it is safe: every row is upserted with a
// stable id.
func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	courseID := flag.String("course-id", "data-analytics", "course id")
	title := flag.String("course-title", "Data Analytics", "course title")
	count := flag.Int("cohorts", 4, "number of quarterly cohorts to create, starting this month")
	userEmail := flag.String("user-email", "", "also seed a learner with this email")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, true)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pg.Connect(ctx, config.DatabaseConfig{URL: cfg.Database.URL, MaxConns: 2})
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	cohorts := pg.NewCohortRepo(pool)
	if err := cohorts.SaveCourse(ctx, nil, &model.Course{ID: *courseID, Title: *title}); err != nil {
		log.Fatalf("save course: %v", err)
	}
	fmt.Printf("course: %s (%s)\n", *title, *courseID)

	now := time.Now().UTC()
	first := time.Date(now.Year(), now.Month(), cfg.Billing.CohortAnchorDay, 0, 0, 0, 0, time.UTC)
	for i := 0; i < *count; i++ {
		start := first.AddDate(0, 3*i, 0)
		end := start.AddDate(0, 3, -1)
		name := model.CohortName(start)
		c := &model.Cohort{
			ID:        uuid.NewSHA1(uuid.NameSpaceURL, []byte(*courseID+"/"+name)).String(),
			CourseID:  *courseID,
			Name:      name,
			StartDate: start,
			EndDate:   &end,
		}
		if err := cohorts.SaveCohort(ctx, nil, c); err != nil {
			log.Fatalf("save cohort %q: %v", name, err)
		}
		fmt.Printf("  cohort: %s starts %s (id=%s)\n", name, start.Format("2006-01-02"), c.ID)
	}

	if *userEmail != "" {
		u := &model.User{
			ID:        uuid.NewSHA1(uuid.NameSpaceURL, []byte("user/"+*userEmail)).String(),
			Email:     *userEmail,
			FirstName: "Test",
			LastName:  "Learner",
		}
		if err := pg.NewPostgresUserRepo(pool).Save(ctx, nil, u); err != nil {
			log.Fatalf("save user: %v", err)
		}
		fmt.Printf("user: %s (id=%s)\n", u.Email, u.ID)
	}

	fmt.Println("seeding complete")
}

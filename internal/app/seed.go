package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"lecturehall/pkg/interfaces"
	"lecturehall/pkg/types"
)

// SeedData is the directory data loaded from a seed file
type SeedData struct {
	Users      []SeedUser      `mapstructure:"users"`
	Classrooms []SeedClassroom `mapstructure:"classrooms"`
	Lectures   []SeedLecture   `mapstructure:"lectures"`
}

type SeedUser struct {
	ID    string `mapstructure:"id"`
	Name  string `mapstructure:"name"`
	Email string `mapstructure:"email"`
	Role  string `mapstructure:"role"`
}

type SeedClassroom struct {
	ID      string   `mapstructure:"id"`
	Name    string   `mapstructure:"name"`
	OwnerID string   `mapstructure:"owner_id"`
	Members []string `mapstructure:"members"`
}

type SeedLecture struct {
	ID          string `mapstructure:"id"`
	ClassroomID string `mapstructure:"classroom_id"`
	Title       string `mapstructure:"title"`
	OwnerID     string `mapstructure:"owner_id"`
}

// SeedResult counts the records written by Apply
type SeedResult struct {
	Users      int
	Classrooms int
	Lectures   int
	Skipped    int
}

// LoadSeedFile reads users, classrooms and lectures from any format viper understands
func LoadSeedFile(path string) (*SeedData, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read seed file %s: %w", path, err)
	}

	var data SeedData
	if err := v.Unmarshal(&data); err != nil {
		return nil, fmt.Errorf("failed to parse seed file %s: %w", path, err)
	}
	return &data, nil
}

// Apply writes the seed data in dependency order. Records that already exist
// are skipped so a seed file can be applied more than once.
func (d *SeedData) Apply(ctx context.Context, seeder interfaces.Seeder, logger *zap.Logger) (SeedResult, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var result SeedResult
	now := time.Now().UTC()

	created := func(kind, id string, err error, count *int) error {
		switch {
		case err == nil:
			*count++
			return nil
		case errors.Is(err, interfaces.ErrAlreadyExists):
			logger.Debug("seed record exists", zap.String("kind", kind), zap.String("id", id))
			result.Skipped++
			return nil
		default:
			return fmt.Errorf("failed to seed %s %s: %w", kind, id, err)
		}
	}

	for _, u := range d.Users {
		if u.ID == "" {
			return result, errors.New("seed user without id")
		}
		role := u.Role
		if role == "" {
			role = types.RoleStudent
		}
		err := seeder.CreateUser(ctx, &types.User{ID: types.UserID(u.ID), Name: u.Name, Email: u.Email, Role: role})
		if err := created("user", u.ID, err, &result.Users); err != nil {
			return result, err
		}
	}

	for _, c := range d.Classrooms {
		if c.ID == "" {
			return result, errors.New("seed classroom without id")
		}
		err := seeder.CreateClassroom(ctx, &types.Classroom{
			ID:        types.ClassroomID(c.ID),
			Name:      c.Name,
			OwnerID:   types.UserID(c.OwnerID),
			CreatedAt: now,
		})
		if err := created("classroom", c.ID, err, &result.Classrooms); err != nil {
			return result, err
		}
		for _, member := range c.Members {
			if err := seeder.AddClassroomMember(ctx, types.ClassroomID(c.ID), types.UserID(member)); err != nil {
				return result, fmt.Errorf("failed to add %s to classroom %s: %w", member, c.ID, err)
			}
		}
	}

	for _, l := range d.Lectures {
		if l.ID == "" {
			return result, errors.New("seed lecture without id")
		}
		err := seeder.CreateLecture(ctx, &types.Lecture{
			ID:          types.LectureID(l.ID),
			ClassroomID: types.ClassroomID(l.ClassroomID),
			Title:       l.Title,
			OwnerID:     types.UserID(l.OwnerID),
			CreatedAt:   now,
		})
		if err := created("lecture", l.ID, err, &result.Lectures); err != nil {
			return result, err
		}
	}

	logger.Info("seed applied",
		zap.Int("users", result.Users),
		zap.Int("classrooms", result.Classrooms),
		zap.Int("lectures", result.Lectures),
		zap.Int("skipped", result.Skipped))
	return result, nil
}

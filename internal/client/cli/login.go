package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iudanet/gophstorage/internal/client/storage"
	"github.com/iudanet/gophstorage/internal/validation"
)

// RunLogin requests a token for the player and stores the profile
func RunLogin(ctx context.Context, c *Cli, args []string) error {
	var player string
	if len(args) > 0 {
		player = args[0]
	} else {
		var err error
		player, err = c.io.ReadInput("Player: ")
		if err != nil {
			return fmt.Errorf("failed to read player id: %w", err)
		}
	}

	if err := validation.ValidatePlayerID(player); err != nil {
		return fmt.Errorf("invalid player id: %w", err)
	}

	resp, err := c.api.IssueToken(ctx, player)
	if err != nil {
		return err
	}

	profile := &storage.Profile{
		PlayerID:    resp.PlayerID,
		ServerURL:   c.cfg.Server,
		AccessToken: resp.AccessToken,
		ExpiresAt:   time.Now().Unix() + resp.ExpiresIn,
	}
	if err := c.store.SaveProfile(ctx, profile); err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}

	c.io.Println("✓ Login successful!")
	c.io.Printf("Player: %s\n", profile.PlayerID)
	c.io.Printf("Token expires in: %s\n", time.Duration(resp.ExpiresIn)*time.Second)
	return nil
}

// RunLogout removes the stored profile
func RunLogout(ctx context.Context, c *Cli, _ []string) error {
	if err := c.store.DeleteProfile(ctx); err != nil {
		if errors.Is(err, storage.ErrProfileNotFound) {
			c.io.Println("Not logged in")
			return nil
		}
		return fmt.Errorf("failed to delete profile: %w", err)
	}
	c.io.Println("✓ Logged out")
	return nil
}

// RunStatus prints the stored profile and the server health
func RunStatus(ctx context.Context, c *Cli, _ []string) error {
	profile, err := c.store.GetProfile(ctx)
	switch {
	case errors.Is(err, storage.ErrProfileNotFound):
		c.io.Println("Not logged in")
	case err != nil:
		return fmt.Errorf("failed to get profile: %w", err)
	default:
		state := "valid"
		if time.Now().Unix() >= profile.ExpiresAt {
			state = "expired"
		}
		c.io.Printf("Player: %s (token %s)\n", profile.PlayerID, state)
		c.io.Printf("Server: %s\n", profile.ServerURL)
	}

	health, err := c.api.Health(ctx)
	if err != nil {
		c.io.Printf("Server unreachable: %v\n", err)
		return nil
	}
	c.io.Printf("Server %s: version %s, %d terminals, %d subscribers, %d reservations\n",
		health.Status, health.Version, health.Terminals, health.Subscribers, health.Reservations)
	return nil
}

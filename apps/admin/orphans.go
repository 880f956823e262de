package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/campusdesk/portal/core/auth"
	"github.com/campusdesk/portal/core/directory"
	sessionsvc "github.com/campusdesk/portal/services/session"
	"github.com/campusdesk/portal/storage/database"
	restdir "github.com/campusdesk/portal/storage/directory/rest"
	sqlxdir "github.com/campusdesk/portal/storage/directory/sqlx"
)

// orphans surfaces session store accounts that hold no role record in
// either directory; the signup flow leaves these behind when the record
// insert fails after account creation. They are reconciled here (manually
// or via -purge), never rolled back inline.
func (cli *commandLine) orphans(purge bool) error {
	if cli.conf.SessionStore.Provider == "inmem" {
		return errors.New("orphan reconciliation requires a hosted session store")
	}
	admin := sessionsvc.NewClient(cli.conf, stdLogger{logger})

	repo, closeRepo, err := cli.directoryRepo()
	if err != nil {
		return err
	}
	defer closeRepo()

	ctx := context.Background()
	users, err := admin.ListUsers(ctx)
	if err != nil {
		return errors.Wrap(err, "listing session store accounts")
	}

	var orphans []auth.User
	for _, usr := range users {
		isOrphan, err := cli.isOrphan(ctx, repo, usr.ID)
		if err != nil {
			return err
		}
		if isOrphan {
			orphans = append(orphans, usr)
		}
	}

	if len(orphans) == 0 {
		fmt.Println("no orphaned accounts")
		return nil
	}

	fmt.Printf("%d orphaned account(s):\n", len(orphans))
	for _, usr := range orphans {
		fmt.Printf("  %s  %s  created %s\n", usr.ID, usr.Email, usr.CreatedAt.Format("2006-01-02 15:04:05"))
		if purge {
			if err := admin.DeleteUser(ctx, usr.ID); err != nil {
				return errors.Wrapf(err, "deleting account %s", usr.ID)
			}
			fmt.Printf("  %s  deleted\n", usr.ID)
		}
	}
	return nil
}

func (cli *commandLine) isOrphan(ctx context.Context, repo directory.Repository, userID string) (bool, error) {
	for _, table := range []directory.Table{directory.Students, directory.Teachers} {
		ok, err := repo.HasRecord(ctx, table, userID)
		if err != nil {
			return false, errors.Wrapf(err, "checking %s record for %s", table, userID)
		}
		if ok {
			return false, nil
		}
	}
	return true, nil
}

func (cli *commandLine) directoryRepo() (directory.Repository, func(), error) {
	switch cli.conf.Directory.Backend {
	case "postgres":
		db, err := database.Open(cli.conf)
		if err != nil {
			return nil, nil, err
		}
		return sqlxdir.New(db), func() { _ = db.Close() }, nil
	case "rest":
		return restdir.New(cli.conf), func() {}, nil
	default:
		return nil, nil, errors.New("orphan reconciliation requires a hosted role directory")
	}
}

package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/gin-gonic/gin"
	"github.com/talentbridge/go-apiclient/auth"
	"github.com/talentbridge/go-apiclient/internal/devorigin"
	"github.com/talentbridge/go-apiclient/media"
	"github.com/talentbridge/go-apiclient/progress"
	"github.com/talentbridge/go-apiclient/upload"
)

func runLogin(ctx context.Context, a *app, args []string) int {
	fs := newFlagSet("login", a.out)
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password, defaults to $APICLIENT_PASSWORD")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if *password == "" {
		*password = a.envRepo.Get("APICLIENT_PASSWORD")
	}

	client, err := a.apiClient()
	if err != nil {
		a.logger.Errorf("%s", err)
		return exitFailure
	}

	e, err := auth.NewService(client).Login(ctx, auth.Credentials{Email: *email, Password: *password})
	if err != nil {
		a.logger.Errorf("Login failed: %s", err)
		return exitFailure
	}
	if e.Success {
		a.logger.Donef("Signed in as %s", e.Data.User.Email)
	}
	return a.print(e, e.Success)
}

func runLogout(_ context.Context, a *app, _ []string) int {
	client, err := a.apiClient()
	if err != nil {
		a.logger.Errorf("%s", err)
		return exitFailure
	}
	if err := auth.NewService(client).Logout(); err != nil {
		a.logger.Errorf("Logout failed: %s", err)
		return exitFailure
	}
	a.logger.Donef("Signed out")
	return exitOK
}

func runGet(ctx context.Context, a *app, args []string) int {
	if len(args) != 1 {
		a.logger.Errorf("Usage: %s", commands["get"].usage)
		return exitUsage
	}
	client, err := a.apiClient()
	if err != nil {
		a.logger.Errorf("%s", err)
		return exitFailure
	}

	e, err := client.Get(ctx, args[0])
	if err != nil {
		a.logger.Errorf("Request failed: %s", err)
		return exitFailure
	}
	return a.print(e, e.Success)
}

func runUpload(ctx context.Context, a *app, args []string) int {
	fs := newFlagSet("upload", a.out)
	category := fs.String("category", media.CategoryCV, "upload category: cv or photo")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() == 0 {
		a.logger.Errorf("Usage: %s", commands["upload"].usage)
		return exitUsage
	}

	var paths []string
	for _, pattern := range fs.Args() {
		matches, err := doublestar.FilepathGlob(pattern)
		if err != nil {
			a.logger.Errorf("Invalid pattern %s: %s", pattern, err)
			return exitUsage
		}
		if len(matches) == 0 {
			a.logger.Warnf("No files match %s", pattern)
		}
		paths = append(paths, matches...)
	}
	if len(paths) == 0 {
		return exitFailure
	}

	client, err := a.apiClient()
	if err != nil {
		a.logger.Errorf("%s", err)
		return exitFailure
	}
	var opts []media.Option
	if a.cfg.DirectUpload {
		opts = append(opts, media.WithDirectUpload(upload.New(client, upload.DefaultConfig())))
	}
	svc := media.NewService(client, opts...)

	code := exitOK
	for _, pth := range paths {
		file, err := upload.FileFromPath(pth)
		if err != nil {
			a.logger.Errorf("%s", err)
			code = exitFailure
			continue
		}

		a.logger.Infof("Uploading %s", pth)
		lastPercent := -25
		e, err := svc.Upload(ctx, *category, file, func(ev progress.Event) {
			if ev.Percentage/25 != lastPercent/25 {
				a.logger.Printf("  %3d%%", ev.Percentage)
			}
			lastPercent = ev.Percentage
		})
		if err != nil {
			a.logger.Errorf("Upload of %s failed: %s", pth, err)
			code = exitFailure
			continue
		}
		if a.print(e, e.Success) != exitOK {
			code = exitFailure
		}
	}
	return code
}

func runDownload(ctx context.Context, a *app, args []string) int {
	if len(args) != 2 {
		a.logger.Errorf("Usage: %s", commands["download"].usage)
		return exitUsage
	}
	client, err := a.apiClient()
	if err != nil {
		a.logger.Errorf("%s", err)
		return exitFailure
	}

	dest, err := media.NewService(client).Download(ctx, args[0], args[1])
	if err != nil {
		a.logger.Errorf("%s", err)
		return exitFailure
	}
	a.logger.Donef("Saved %s", dest)
	return exitOK
}

func runServe(ctx context.Context, a *app, args []string) int {
	fs := newFlagSet("serve", a.out)
	addr := fs.String("addr", "127.0.0.1:8080", "listen address")
	accounts := fs.StringArray("account", nil, "seed an account as email:password, repeatable")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	var opts []devorigin.Option
	for _, v := range *accounts {
		email, password, ok := splitAccount(v)
		if !ok {
			a.logger.Errorf("Invalid account %q, expected email:password", v)
			return exitUsage
		}
		opts = append(opts, devorigin.WithAccount(email, password, email))
	}

	ln, err := net.Listen("tcp", *addr)
	if err != nil {
		a.logger.Errorf("Listen on %s: %s", *addr, err)
		return exitFailure
	}

	gin.SetMode(gin.ReleaseMode)
	origin := devorigin.New("http://"+ln.Addr().String(), a.logger, opts...)
	srv := &http.Server{Handler: origin, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Warnf("Shutdown: %s", err)
		}
	}()

	a.logger.Infof("Development origin listening on http://%s", ln.Addr())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		a.logger.Errorf("Serve: %s", err)
		return exitFailure
	}
	return exitOK
}

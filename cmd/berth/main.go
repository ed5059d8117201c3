package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/term"

	"github.com/berth-sh/berth/internal/app"
	"github.com/berth-sh/berth/internal/config"
	"github.com/berth-sh/berth/internal/deploy"
	"github.com/berth-sh/berth/internal/docker"
	"github.com/berth-sh/berth/internal/envfile"
	"github.com/berth-sh/berth/internal/execx"
	"github.com/berth-sh/berth/internal/git"
	"github.com/berth-sh/berth/internal/giturl"
	"github.com/berth-sh/berth/internal/logging"
	"github.com/berth-sh/berth/internal/nginx"
	"github.com/berth-sh/berth/internal/port"
	"github.com/berth-sh/berth/internal/proxy"
	"github.com/berth-sh/berth/internal/version"
)

type envFlags []string

func (e *envFlags) String() string { return strings.Join(*e, ",") }

func (e *envFlags) Set(v string) error {
	*e = append(*e, v)
	return nil
}

func main() {
	if len(os.Args) > 1 && os.Args[1] == "version" {
		fmt.Println(version.String())
		return
	}

	var (
		configPath = flag.String("config", "", "path to config.toml")
		name       = flag.String("name", "", "application name")
		repo       = flag.String("repo", "", "https repository URL")
		branch     = flag.String("branch", "main", "branch to deploy")
		domain     = flag.String("domain", "", "domain the app is served on")
		image      = flag.String("image", "", "image name (defaults to app name)")
		appPort    = flag.String("port", "", "port the container listens on")
		envTag     = flag.String("env-tag", "production", "value for the ENV variable")
		email      = flag.String("email", "", "contact email for certificate issuance")
		envFile    = flag.String("env-file", "", "dotenv file with environment overrides")
		logLevel   = flag.String("log-level", "info", "debug, info, warn or error")
		noPrompt   = flag.Bool("no-input", false, "fail instead of prompting for missing values")
	)
	var envs envFlags
	flag.Var(&envs, "env", "environment override KEY=VALUE (repeatable)")
	flag.Parse()

	log := logging.New(*logLevel)

	spec, err := buildSpec(specInput{
		name:     *name,
		repo:     *repo,
		branch:   *branch,
		domain:   *domain,
		image:    *image,
		port:     *appPort,
		envTag:   *envTag,
		email:    *email,
		envFile:  *envFile,
		envs:     envs,
		noPrompt: *noPrompt,
	})
	if err != nil {
		log.Fatalf("input: %v", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if spec.AcmeEmail == "" {
		spec.AcmeEmail = cfg.Proxy.AcmeEmail
	}
	if err := cfg.EnsureDirs(); err != nil {
		log.Fatalf("dirs: %v", err)
	}

	dc, err := docker.New("")
	if err != nil {
		log.Fatalf("docker: %v", err)
	}
	defer dc.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := dc.Ping(ctx); err != nil {
		log.Fatalf("docker daemon not reachable: %v", err)
	}

	runner := execx.Exec{}
	pipeline := deploy.NewPipeline(
		cfg,
		log,
		git.NewClient(runner),
		dc,
		proxy.NewBootstrapper(cfg.Proxy, dc, log.WithField("component", "proxy")),
		nginx.NewRegistrar(cfg.Nginx, runner, log.WithField("component", "nginx")),
		port.NewAllocator(cfg.Ports.RangeStart, cfg.Ports.RangeEnd, nil),
		runner,
	)
	pipeline.DefaultSteps()

	if err := pipeline.Run(ctx, spec); err != nil {
		log.Fatalf("deployment failed: %v", err)
	}
}

type specInput struct {
	name, repo, branch, domain, image, port string
	envTag, email, envFile                  string
	envs                                    []string
	noPrompt                                bool
}

// buildSpec turns flags plus interactive answers into a validated,
// immutable application spec. All validation happens here, before any
// host state is touched.
func buildSpec(in specInput) (*app.Spec, error) {
	rd := bufio.NewReader(os.Stdin)

	name, err := required("application name", in.name, in.noPrompt, rd)
	if err != nil {
		return nil, err
	}
	repo, err := required("repository URL (https)", in.repo, in.noPrompt, rd)
	if err != nil {
		return nil, err
	}
	domain, err := required("domain", in.domain, in.noPrompt, rd)
	if err != nil {
		return nil, err
	}
	portStr, err := required("container port", in.port, in.noPrompt, rd)
	if err != nil {
		return nil, err
	}
	containerPort, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("container port must be numeric, got %q", portStr)
	}

	creds, err := promptCredentials(in.noPrompt, rd)
	if err != nil {
		return nil, err
	}

	overrides, err := collectEnv(in.envFile, in.envs)
	if err != nil {
		return nil, err
	}

	spec := &app.Spec{
		Name:          name,
		RepoURL:       repo,
		Branch:        in.branch,
		Domain:        domain,
		ImageName:     in.image,
		ContainerPort: containerPort,
		Env:           overrides,
		EnvTag:        in.envTag,
		AcmeEmail:     in.email,
		Credentials:   creds,
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return spec, nil
}

func required(label, val string, noPrompt bool, rd *bufio.Reader) (string, error) {
	if strings.TrimSpace(val) != "" {
		return strings.TrimSpace(val), nil
	}
	if noPrompt {
		return "", fmt.Errorf("%s is required", label)
	}
	fmt.Printf("%s: ", label)
	line, err := rd.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read %s: %w", label, err)
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "", fmt.Errorf("%s is required", label)
	}
	return line, nil
}

// promptCredentials captures at most one authentication form. Secrets
// are read without echo and are never persisted anywhere.
func promptCredentials(noPrompt bool, rd *bufio.Reader) (giturl.Credentials, error) {
	var creds giturl.Credentials
	if noPrompt || !term.IsTerminal(int(os.Stdin.Fd())) {
		return creds, nil
	}

	fmt.Print("repository requires auth? [y/N]: ")
	answer, _ := rd.ReadString('\n')
	if !strings.EqualFold(strings.TrimSpace(answer), "y") {
		return creds, nil
	}

	fmt.Print("access token (leave empty for username/password): ")
	token, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return creds, fmt.Errorf("read token: %w", err)
	}
	if len(token) > 0 {
		creds.Token = string(token)
		return creds, nil
	}

	user, err := required("username", "", false, rd)
	if err != nil {
		return creds, err
	}
	fmt.Print("password: ")
	pass, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return creds, fmt.Errorf("read password: %w", err)
	}
	creds.Username = user
	creds.Password = string(pass)
	return creds, nil
}

// collectEnv merges --env-file pairs with repeated --env flags; an
// explicit flag wins over the file.
func collectEnv(envFile string, envs []string) ([]envfile.Pair, error) {
	var pairs []envfile.Pair
	seen := make(map[string]int)

	add := func(k, v string) {
		if i, ok := seen[k]; ok {
			pairs[i].Value = v
			return
		}
		seen[k] = len(pairs)
		pairs = append(pairs, envfile.Pair{Key: k, Value: v})
	}

	if envFile != "" {
		fileEnv, err := godotenv.Read(envFile)
		if err != nil {
			return nil, fmt.Errorf("env file %s: %w", envFile, err)
		}
		// godotenv returns a map; keep a stable order for the keys.
		keys := make([]string, 0, len(fileEnv))
		for k := range fileEnv {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			add(k, fileEnv[k])
		}
	}

	for _, e := range envs {
		k, v, ok := strings.Cut(e, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --env %q, want KEY=VALUE", e)
		}
		add(k, v)
	}
	return pairs, nil
}

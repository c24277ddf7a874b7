// Package ossfuzz knows the layout of an OSS-Fuzz checkout: where project
// definitions live, what project.yaml declares, and how to resolve a
// project's main source repository.
package ossfuzz

import (
	"bufio"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"cifuzz/config"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type Layout struct {
	root   string
	logger *zap.Logger
}

func NewLayout(appConfig *config.AppConfig, logger *zap.Logger) *Layout {
	return &Layout{
		root:   appConfig.OSSFuzzRoot,
		logger: logger,
	}
}

// ProjectDir returns the project definition directory, e.g.
// <root>/projects/curl.
func (l *Layout) ProjectDir(project string) string {
	return filepath.Join(l.root, "projects", project)
}

// ProjectExists reports whether a project definition is present in the
// OSS-Fuzz checkout.
func (l *Layout) ProjectExists(project string) bool {
	if project == "" {
		return false
	}
	info, err := os.Stat(l.ProjectDir(project))
	return err == nil && info.IsDir()
}

type ProjectYaml struct {
	Language   string   `yaml:"language"`
	MainRepo   string   `yaml:"main_repo"`
	Sanitizers []string `yaml:"sanitizers"`
}

func (l *Layout) GetProjectYaml(project string) (*ProjectYaml, error) {
	projectYamlPath := filepath.Join(l.ProjectDir(project), "project.yaml")
	projectYamlContent, err := os.ReadFile(projectYamlPath)
	if err != nil {
		l.logger.Error("failed to read project.yaml", zap.String("project", project), zap.Error(err))
		return nil, err
	}

	var projectYaml ProjectYaml
	if err := yaml.Unmarshal(projectYamlContent, &projectYaml); err != nil {
		l.logger.Error("failed to parse project.yaml", zap.String("project", project), zap.Error(err))
		return nil, err
	}

	return &projectYaml, nil
}

// DetectMainRepo resolves the git URL of the project's source repository.
// project.yaml's main_repo field wins; otherwise the project Dockerfile is
// scanned for the git clone whose target matches repoName. An empty repoName
// accepts the first clone found.
func (l *Layout) DetectMainRepo(project, repoName string) (string, error) {
	if projectYaml, err := l.GetProjectYaml(project); err == nil && projectYaml.MainRepo != "" {
		if repoName == "" || repoBase(projectYaml.MainRepo) == repoName {
			return projectYaml.MainRepo, nil
		}
	}

	dockerfilePath := filepath.Join(l.ProjectDir(project), "Dockerfile")
	file, err := os.Open(dockerfilePath)
	if err != nil {
		return "", fmt.Errorf("open project Dockerfile: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		url, ok := cloneURLFromLine(scanner.Text(), repoName)
		if ok {
			return url, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("scan project Dockerfile: %w", err)
	}

	return "", fmt.Errorf("could not detect repo %q for project %s", repoName, project)
}

// cloneURLFromLine extracts the cloned URL from a "git clone" Dockerfile line
// when its repository basename matches repoName.
func cloneURLFromLine(line, repoName string) (string, bool) {
	fields := strings.Fields(line)
	for i := 0; i+1 < len(fields); i++ {
		if fields[i] != "git" || fields[i+1] != "clone" {
			continue
		}
		for _, candidate := range fields[i+2:] {
			if strings.HasPrefix(candidate, "-") {
				continue // clone flags like --depth
			}
			if !strings.Contains(candidate, "://") && !strings.HasPrefix(candidate, "git@") {
				break // positional arg that is not a URL: the checkout dir
			}
			if repoName == "" || repoBase(candidate) == repoName {
				return candidate, true
			}
			break
		}
	}
	return "", false
}

func repoBase(url string) string {
	return strings.TrimSuffix(path.Base(strings.TrimSuffix(url, "/")), ".git")
}

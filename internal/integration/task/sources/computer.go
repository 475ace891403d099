package sources

import (
	"context"
	"path/filepath"

	"github.com/dshills/cpptasks/internal/integration/task"
	"github.com/dshills/cpptasks/internal/logging"
	"github.com/dshills/cpptasks/internal/project/workspace"
)

// ToolLocator returns the cppbuild command to run for a folder root.
type ToolLocator func(root string) string

// Computer computes the cppbuild tasks of one folder.
type Computer struct {
	provider BuildInfoProvider
	locate   ToolLocator
	logger   *logging.Logger
}

// ComputerOption configures a Computer.
type ComputerOption func(*Computer)

// WithToolLocator overrides how the cppbuild command is found.
func WithToolLocator(fn ToolLocator) ComputerOption {
	return func(c *Computer) {
		if fn != nil {
			c.locate = fn
		}
	}
}

// NewComputer creates a Computer reading build configurations from provider.
func NewComputer(provider BuildInfoProvider, logger *logging.Logger, opts ...ComputerOption) *Computer {
	if logger == nil {
		logger = logging.Null()
	}
	c := &Computer{
		provider: provider,
		locate:   FindToolCommand,
		logger:   logger.WithComponent("sources"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ConfigPaths returns the properties and build-steps file paths under root.
func ConfigPaths(root string) (properties, buildSteps string) {
	dir := filepath.Join(root, task.ConfigDir)
	return filepath.Join(dir, task.PropertiesFile), filepath.Join(dir, task.BuildStepsFile)
}

// ComputeTasks returns one task per configuration, or one per build type for
// configurations that declare build types. Folders without a local path have
// no tasks.
func (c *Computer) ComputeTasks(ctx context.Context, folder workspace.Folder) ([]*task.Task, error) {
	root, ok := folder.LocalPath()
	if !ok {
		return []*task.Task{}, nil
	}

	properties, buildSteps := ConfigPaths(root)
	infos, err := c.provider.BuildInfos(ctx, properties, buildSteps)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tool := c.locate(root)
	c.logger.WithField("folder", folder.Name).Debug("%d configurations, tool %s", len(infos), tool)

	tasks := make([]*task.Task, 0, len(infos))
	for _, info := range infos {
		if len(info.BuildTypes) == 0 {
			tasks = append(tasks, buildTask(folder, root, tool, info, ""))
			continue
		}
		for _, bt := range info.BuildTypes {
			tasks = append(tasks, buildTask(folder, root, tool, info, bt))
		}
	}
	return tasks, nil
}

func buildTask(folder workspace.Folder, root, tool string, info BuildInfo, buildType string) *task.Task {
	name := task.Label(info.Name, buildType)

	command := tool + ` "` + info.Name + `"`
	if buildType != "" {
		command += ` "` + buildType + `"`
	}

	matchers := make([]string, len(info.ProblemMatchers))
	copy(matchers, info.ProblemMatchers)

	return &task.Task{
		ID:              task.GenerateTaskID(folder.URI, task.ToolName, name),
		Name:            name,
		Source:          task.ToolName,
		Folder:          folder.URI,
		Config:          info.Name,
		BuildType:       buildType,
		Type:            task.TaskTypeShell,
		Group:           task.TaskGroupBuild,
		Command:         command,
		Cwd:             root,
		ProblemMatchers: matchers,
	}
}

// Package task provides build task integration for cpptasks.
//
// This package defines the build task model shared by every task source and
// the registry through which task providers are made available to callers.
//
// # Architecture
//
//	┌─────────────────────────────────────────────────────────────────┐
//	│                    Task Registry                                 │
//	│  - Holds one registration per provider and tool name            │
//	│  - Concatenates tasks from every registered provider            │
//	└─────────────────────────────────────────────────────────────────┘
//	                              ▲
//	                              │ Register / Dispose
//	┌─────────────────────────────────────────────────────────────────┐
//	│                    detect.Aggregator                             │
//	│  - One FolderDetector per workspace folder                      │
//	│  - Caches tasks until the folder's build files change           │
//	└─────────────────────────────────────────────────────────────────┘
//	                              │
//	                              ▼
//	┌─────────────────────────────────────────────────────────────────┐
//	│                    sources.Computer                              │
//	│  - Reads .vscode/c_cpp_build.json and c_cpp_properties.json     │
//	│  - Produces one task per configuration and build type           │
//	└─────────────────────────────────────────────────────────────────┘
//
// # Usage
//
//	registry := task.NewRegistry()
//	reg := registry.Register("cppbuild", provider)
//	defer reg.Dispose()
//
//	tasks, err := registry.Tasks(ctx)
//
// # Subpackages
//
//   - detect: per-folder detection, caching and the multi-folder aggregator
//   - sources: the cppbuild configuration source, scaffolding and tool lookup
package task

// Package detect discovers cppbuild tasks for the folders of a workspace.
//
// A FolderDetector owns one folder. It watches the folder's
// .vscode/c_cpp_properties.json and .vscode/c_cpp_build.json files and
// caches the result of the last task computation until one of them is
// created, changed or deleted. Concurrent callers share a single in-flight
// computation.
//
// An Aggregator keeps one FolderDetector per workspace folder, follows folder
// membership and configuration changes, and registers itself as the
// "cppbuild" task provider for as long as at least one folder is present.
//
// # Usage
//
//	agg, err := detect.NewAggregator(detect.Options{
//		Folders:  ws,
//		Config:   cfg,
//		Watcher:  hub,
//		Registry: registry,
//		Computer: sources.NewComputer(sources.NewJSONBuildInfoProvider(), logger),
//	})
//	if err != nil {
//		return err
//	}
//	if err := agg.Start(); err != nil {
//		return err
//	}
//	defer agg.Dispose()
package detect

// Package stages holds the concrete stage catalog of the content pipeline.
//
// Only the content stage talks to the network, through a
// generation.Generator. Research, visual, social, and email derive their
// output locally from the topic and the generated package, paced by a
// configurable delay so progress is visible. The save stage writes the
// assembled package through a Saver when one is configured.
//
// Each work function reads earlier results through stage.Env.Output, so the
// catalog stays in the order Definitions returns it.
package stages

// Package tools holds the closed set of capabilities a model may call.
//
// A Definition pairs a validated name and declared parameters with a
// Handler. Definitions are registered once into a Registry, which rejects
// duplicates, keeps registration order, and renders the function-calling
// schema sent to the model. The Executor resolves a call by name, validates
// its JSON arguments against the compiled parameter schema, runs the handler,
// and folds every outcome (including panics) into a Result the agent loop can
// hand back to the model.
//
//	reg := tools.NewRegistry()
//	if err := reg.Register(tools.Definition{
//	    Name:        "create_campaign",
//	    Description: "Create a marketing campaign",
//	    Category:    tools.CategoryEntity,
//	    Parameters: []tools.Parameter{
//	        {Name: "name", Type: tools.TypeString, Required: true},
//	    },
//	    Handler: handleCreateCampaign,
//	}); err != nil {
//	    return err
//	}
//	exec := tools.NewExecutor(reg)
//	res := exec.Execute(ctx, "create_campaign", args, tools.CallContext{ExecutionID: id})
package tools

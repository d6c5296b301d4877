package managed

import (
	"context"
	"testing"

	"github.com/wippyai/managed-runtime/engine"
	"github.com/wippyai/managed-runtime/enginetest"
)

func gameImage() enginetest.ImageDef {
	return enginetest.ImageDef{
		Types: []engine.TypeDef{
			{
				Namespace: "Game",
				Name:      "Player",
				Size:      16,
				Alignment: 8,
				Base:      "Game.Actor",
				Interfaces: []string{
					"Game.IDrawable",
				},
				Constructors: [][]engine.TypeDesc{
					{},
					{{Name: "s32"}},
				},
				Methods: []engine.MethodDef{
					{Name: "ping", Token: 1, Return: engine.TypeDesc{Void: true}},
					{Name: "boom", Token: 2, Return: engine.TypeDesc{Void: true}},
					{Name: "add", Token: 3, Params: []engine.TypeDesc{{Name: "s32"}, {Name: "s32"}}, Return: engine.TypeDesc{Name: "s32"}},
					{Name: "get-health", Token: 4, Return: engine.TypeDesc{Name: "s32"}},
					{Name: "set-health", Token: 5, Params: []engine.TypeDesc{{Name: "s32"}}, Return: engine.TypeDesc{Void: true}},
					{Name: "version", Token: 6, Static: true, Return: engine.TypeDesc{Name: "string"}},
				},
				Fields: []engine.FieldDef{
					{Name: "health", Type: engine.TypeDesc{Name: "s32"}},
					{Name: "name", Type: engine.TypeDesc{Name: "string"}},
				},
				Properties: []engine.PropertyDef{
					{Name: "health", Getter: "get-health", Setter: "set-health", Type: engine.TypeDesc{Name: "s32"}},
					{Name: "name", Getter: "", Setter: "", Type: engine.TypeDesc{Name: "string"}},
				},
			},
			{Namespace: "Game", Name: "Actor"},
			{Namespace: "Game", Name: "IDrawable"},
		},
		Referenced: []string{"System.Object", "System.String"},
		Bodies: map[string]enginetest.MethodBody{
			"Game.Player#.ctor": func(target *enginetest.Object, args []engine.Value) (engine.Value, *enginetest.Throw) {
				if len(args) == 1 {
					target.Fields["health"] = args[0]
				}
				return nil, nil
			},
			"Game.Player#boom": func(target *enginetest.Object, args []engine.Value) (engine.Value, *enginetest.Throw) {
				return nil, &enginetest.Throw{
					Message:   "boom",
					Source:    "Game.Player.boom",
					Class:     "InvalidOperationException",
					Namespace: "System",
				}
			},
			"Game.Player#add": func(target *enginetest.Object, args []engine.Value) (engine.Value, *enginetest.Throw) {
				return args[0].(int32) + args[1].(int32), nil
			},
			"Game.Player#get-health": func(target *enginetest.Object, args []engine.Value) (engine.Value, *enginetest.Throw) {
				return target.Fields["health"], nil
			},
			"Game.Player#set-health": func(target *enginetest.Object, args []engine.Value) (engine.Value, *enginetest.Throw) {
				target.Fields["health"] = args[0]
				return nil, nil
			},
			"Game.Player#version": func(target *enginetest.Object, args []engine.Value) (engine.Value, *enginetest.Throw) {
				return "1.0", nil
			},
		},
	}
}

// newTestSystem builds a system with one context and the game image
// loaded.
func newTestSystem(t *testing.T) (*System, *Context, *Assembly) {
	t.Helper()
	ctx := context.Background()

	eng := enginetest.New()
	eng.AddImage("game.dll", gameImage())

	sys, err := NewSystem(eng, Settings{DomainName: "test"})
	if err != nil {
		t.Fatalf("NewSystem: %v", err)
	}
	t.Cleanup(func() { sys.Close(ctx) })

	c, err := sys.CreateContext(ctx, "")
	if err != nil {
		t.Fatalf("CreateContext: %v", err)
	}
	asm, err := c.LoadAssembly(ctx, "game.dll")
	if err != nil {
		t.Fatalf("LoadAssembly: %v", err)
	}
	return sys, c, asm
}

func findPlayer(t *testing.T, c *Context) *Class {
	t.Helper()
	class, err := c.FindClass(context.Background(), "Game", "Player")
	if err != nil {
		t.Fatalf("FindClass: %v", err)
	}
	if class == nil {
		t.Fatal("Game.Player not found")
	}
	return class
}

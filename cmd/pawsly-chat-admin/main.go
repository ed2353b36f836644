package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/pawsly/pawsly-chat/config"
	"github.com/pawsly/pawsly-chat/filter"
	"github.com/pawsly/pawsly-chat/globals"
	"github.com/pawsly/pawsly-chat/persistence"
	"github.com/pawsly/pawsly-chat/types"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// A very simple CLI tool for the administration of the role catalog, rooms
// and moderation actions.

var (
	configPath = pflag.StringP("config", "c", "", "path to config file or directory")
)

func main() {
	flagSet := config.GetFlagSet()
	pflag.CommandLine.AddFlagSet(flagSet)
	pflag.Parse()

	globalConfig, err := config.ReadConfiguration(*configPath, flagSet)
	if err != nil {
		panic(err)
	}
	if globalConfig.LogLevel != "" {
		globals.AppLogger.SetLevel(hclog.LevelFromString(globalConfig.LogLevel))
	}

	persister, err := persistence.NewPersister(globalConfig)
	if err != nil {
		panic(err)
	}
	if persister == nil {
		panic("no persistence configured")
	}
	defer persister.Close()

	var cmdRoles = &cobra.Command{
		Use:   "roles",
		Short: "Manage the role catalog",
	}
	var cmdRolesList = &cobra.Command{
		Use:   "list",
		Short: "List all roles",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			roles, err := persister.GetRoles()
			if err != nil {
				globals.AppLogger.Error("could not get roles", "error", err)
				return
			}
			printJSON(roles)
		},
	}
	var cmdRolesCreate = &cobra.Command{
		Use:   "create [name] [priority] [permission...]",
		Short: "Create or update a role",
		Long: `create adds a role to the catalog. Unknown permission strings are
rejected here, at the catalog boundary, not at use sites.`,
		Args: cobra.MinimumNArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			priority, err := strconv.Atoi(args[1])
			if err != nil || priority < 0 || priority >= types.AdminPriority {
				globals.AppLogger.Error("priority must be an integer in [0, 999)")
				return
			}
			perms := types.PermissionSet{}
			for _, arg := range args[2:] {
				perm, err := types.ParsePermission(arg)
				if err != nil {
					globals.AppLogger.Error("invalid permission", "error", err)
					return
				}
				perms = perms.Union(types.PermissionSet{perm})
			}
			administrative, _ := cmd.Flags().GetBool("administrative")
			role := types.Role{
				Name:             args[0],
				Priority:         priority,
				IsAdministrative: administrative,
				Permissions:      perms,
			}
			if err := persister.StoreRole(role); err != nil {
				globals.AppLogger.Error("could not store role", "error", err)
				return
			}
			printJSON(role)
		},
	}
	cmdRolesCreate.Flags().Bool("administrative", false, "mark the role as administrative (informational)")
	var cmdRolesAssign = &cobra.Command{
		Use:   "assign [user id] [role name]",
		Short: "Assign a role to a user",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			role := types.Role{Name: args[1]}
			if err := persister.GetRole(&role); err != nil {
				globals.AppLogger.Error("could not get role", "error", err)
				return
			}
			assignment := types.UserRoleAssignment{UserId: args[0], RoleName: args[1]}
			if err := persister.AssignRole(assignment); err != nil {
				globals.AppLogger.Error("could not assign role", "error", err)
				return
			}
			printJSON(assignment)
		},
	}
	cmdRoles.AddCommand(cmdRolesList, cmdRolesCreate, cmdRolesAssign)

	var cmdActions = &cobra.Command{
		Use:   "actions",
		Short: "Inspect and revoke moderation actions",
	}
	var cmdActionsList = &cobra.Command{
		Use:   "list [target user id]",
		Short: "List moderation actions",
		Long: `list prints recorded moderation actions, optionally restricted to one
target user and narrowed by an expression filter, f.e.
  actions list --filter 'Action.Type == "ban" && Active'`,
		Args: cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			target := ""
			if len(args) > 0 {
				target = args[0]
			}
			actions, err := persister.GetActionsByTarget(target)
			if err != nil {
				globals.AppLogger.Error("could not get actions", "error", err)
				return
			}
			expression, _ := cmd.Flags().GetString("filter")
			if expression != "" {
				prog, err := filter.Compile(expression)
				if err != nil {
					globals.AppLogger.Error("could not compile filter", "error", err)
					return
				}
				now := time.Now().UTC()
				filtered := make([]*types.ModerationAction, 0, len(actions))
				for _, action := range actions {
					match, err := filter.Match(prog, action, action.ActiveAt(now))
					if err != nil {
						globals.AppLogger.Error("could not run filter", "error", err)
						return
					}
					if match {
						filtered = append(filtered, action)
					}
				}
				actions = filtered
			}
			printJSON(actions)
		},
	}
	cmdActionsList.Flags().String("filter", "", "expression filter over the action records")
	var cmdActionsRevoke = &cobra.Command{
		Use:   "revoke [action id] [revoked by]",
		Short: "Revoke an action by id",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			ok, err := persister.RevokeAction(args[0], args[1], time.Now().UTC())
			if err != nil {
				globals.AppLogger.Error("could not revoke action", "error", err)
				return
			}
			fmt.Println(ok)
		},
	}
	cmdActions.AddCommand(cmdActionsList, cmdActionsRevoke)

	var cmdRooms = &cobra.Command{
		Use:   "rooms",
		Short: "Manage rooms",
	}
	var cmdRoomsList = &cobra.Command{
		Use:   "list",
		Short: "List all rooms",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			rooms, err := persister.GetRooms()
			if err != nil {
				globals.AppLogger.Error("could not get rooms", "error", err)
				return
			}
			printJSON(rooms)
		},
	}
	var cmdRoomsCreate = &cobra.Command{
		Use:   "create [slug] [name]",
		Short: "Create a room",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			room := types.Room{Slug: args[0]}
			if len(args) > 1 {
				room.Name = args[1]
			}
			if err := persister.StoreRoom(room); err != nil {
				globals.AppLogger.Error("could not store room", "error", err)
				return
			}
			printJSON(room)
		},
	}
	cmdRooms.AddCommand(cmdRoomsList, cmdRoomsCreate)

	var cmdUsers = &cobra.Command{
		Use:   "users",
		Short: "Manage users",
	}
	var cmdUsersAdmin = &cobra.Command{
		Use:   "admin [user id]",
		Short: "Grant the site-admin flag to a user",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			user := types.User{Id: args[0]}
			err := persister.GetUser(&user)
			if err != nil && !persistence.IsNotFound(err) {
				globals.AppLogger.Error("could not get user", "error", err)
				return
			}
			user.SiteAdmin = true
			if err := persister.StoreUser(user); err != nil {
				globals.AppLogger.Error("could not store user", "error", err)
				return
			}
			printJSON(user)
		},
	}
	cmdUsers.AddCommand(cmdUsersAdmin)

	var rootCmd = &cobra.Command{Use: "pawsly-chat-admin"}
	rootCmd.AddCommand(cmdRoles, cmdActions, cmdRooms, cmdUsers)
	if err := rootCmd.Execute(); err != nil {
		globals.AppLogger.Error("command failed", "error", err)
	}
}

func printJSON(v interface{}) {
	out, err := json.Marshal(v)
	if err != nil {
		globals.AppLogger.Error("could not marshal output", "error", err)
		return
	}
	fmt.Println(string(out))
}

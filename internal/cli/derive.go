package cli

import (
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/api3dao/wallet-watcher/internal/derivation"
)

var (
	deriveSponsor  string
	deriveXpub     string
	deriveProtocol string
)

var deriveCmd = &cobra.Command{
	Use:   "derive",
	Short: "Print the sponsor wallet address derived from an extended public key",
	Example: `  wallet-watcher derive --sponsor 0x9fEe9F24ab79adacbB51af82fb82CFb9D818c6d9 \
    --xpub xpub6Cqm1pK... --protocol 2`,
	Args: cobra.NoArgs,
	RunE: runDerive,
}

func init() {
	deriveCmd.Flags().StringVar(&deriveSponsor, "sponsor", "", "sponsor address")
	deriveCmd.Flags().StringVar(&deriveXpub, "xpub", "", "extended public key")
	deriveCmd.Flags().StringVar(&deriveProtocol, "protocol", derivation.ProtocolPSP,
		fmt.Sprintf("protocol id (%s PSP, %s Airseeker)", derivation.ProtocolPSP, derivation.ProtocolAirseeker))
	_ = deriveCmd.MarkFlagRequired("sponsor")
	_ = deriveCmd.MarkFlagRequired("xpub")
	rootCmd.AddCommand(deriveCmd)
}

func runDerive(cmd *cobra.Command, args []string) error {
	if !common.IsHexAddress(deriveSponsor) {
		return fmt.Errorf("invalid sponsor address %q", deriveSponsor)
	}
	addr, err := derivation.Derive(common.HexToAddress(deriveSponsor), deriveXpub, deriveProtocol)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(os.Stdout, addr.Hex())
	return err
}
